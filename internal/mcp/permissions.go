package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// permissionsFile is .maker.json's shape: an optional allowlist (nil/empty
// means every tool is allowed) and a blocklist that always wins over the
// allowlist, per spec §6.
type permissionsFile struct {
	Allow []string `json:"allow"`
	Block []string `json:"block"`
}

// Permissions is the merged view of the project-local and user-global
// .maker.json files.
type Permissions struct {
	allow map[string]bool // nil means "allow everything not blocked"
	block map[string]bool
}

// LoadPermissions reads ~/.config/<app>/.maker.json first, then
// <projectRoot>/.maker.json, merging both into one allow/block set. Either
// file may be absent; a missing file contributes nothing.
func LoadPermissions(projectRoot string) *Permissions {
	p := &Permissions{block: map[string]bool{}}

	if home, err := os.UserHomeDir(); err == nil {
		p.merge(filepath.Join(home, ".config", "maker", ".maker.json"))
	}
	p.merge(filepath.Join(projectRoot, ".maker.json"))

	return p
}

func (p *Permissions) merge(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var pf permissionsFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return
	}
	if len(pf.Allow) > 0 {
		if p.allow == nil {
			p.allow = map[string]bool{}
		}
		for _, name := range pf.Allow {
			p.allow[name] = true
		}
	}
	for _, name := range pf.Block {
		p.block[name] = true
	}
}

// Allows reports whether tool may be invoked: blocklist wins outright;
// otherwise an empty allowlist permits everything, a non-empty one requires
// explicit membership.
func (p *Permissions) Allows(tool string) bool {
	if p.block[tool] {
		return false
	}
	if p.allow == nil {
		return true
	}
	return p.allow[tool]
}
