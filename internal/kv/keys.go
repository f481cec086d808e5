package kv

import (
	"fmt"
	"time"
)

// Key builders and TTLs for the namespaced schema in spec §4.1/§6.
const (
	TTLClarification = 1 * time.Hour
	TTLSession       = 24 * time.Hour
	TTLCheckpoint    = 7 * 24 * time.Hour
	TTLGraphVersion  = 24 * time.Hour
)

func TaskKey(taskID string) string { return "task:" + taskID }

func SessionKey(sessionID string) string { return "session:" + sessionID }

func ClarificationKey(taskID string) string { return "clarification:" + taskID }

func CheckpointKey(sessionID, feature string) string {
	return fmt.Sprintf("checkpoint:%s:%s", sessionID, feature)
}

const SkillsRegistryKey = "skills:registry"

func SkillUsageKey(name string) string { return "skills:usage:" + name }

const (
	CodeGraphStateKey  = "code_graph:state"
	CodeGraphVersionKey = "code_graph:version"
	CodeGraphLatestKey = "code_graph:latest"
)

// CodeGraphVersionKeyN returns the key for a specific retained version,
// e.g. code_graph:v3.
func CodeGraphVersionKeyN(n int) string {
	return fmt.Sprintf("code_graph:v%d", n)
}
