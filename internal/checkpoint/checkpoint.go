// Package checkpoint implements the checkpoint manager (spec §4.8):
// test-gated commits that mark a feature complete. It is grounded directly
// on original_source/orchestrator/checkpoint_manager.py's flow (run tests,
// commit on pass, update feature status, record history), reimplemented
// with the teacher's os/exec idiom (internal/worker/command_runner.go's
// CommandRunner abstraction, reused here for testability) in place of the
// Python original's subprocess.run calls.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/progress"
	"github.com/arclight-labs/maker/internal/worker"
)

const (
	testCommandTimeout = 60 * time.Second
	gitCommandTimeout  = 10 * time.Second
)

var (
	failureIndicators = []string{"failed", "error", "failure", "traceback"}
	successIndicators = []string{"passed", "ok", "success"}
)

// testCommands is the fallback chain spec §4.8 names: pytest, then
// unittest, then npm test.
var testCommands = [][]string{
	{"python", "-m", "pytest"},
	{"pytest"},
	{"python", "-m", "unittest", "discover"},
	{"npm", "test"},
}

// Result is what create_checkpoint returns (spec §4.8).
type Result struct {
	FeatureName string
	Success     bool
	CommitHash  string
	Error       string
}

// Manager ties together test verification, git commits, feature status
// updates, and KV-backed checkpoint history.
type Manager struct {
	runner  worker.CommandRunner
	tracker *progress.Tracker
	kv      kv.Store
	repoDir string
}

// New builds a Manager. repoDir is the working directory test/git
// subprocesses run in.
func New(runner worker.CommandRunner, tracker *progress.Tracker, store kv.Store, repoDir string) *Manager {
	return &Manager{runner: runner, tracker: tracker, kv: store, repoDir: repoDir}
}

// CreateCheckpoint runs spec §4.8's full flow. code, if non-empty, is
// summarised into the commit message body; sessionID, if non-empty,
// records the checkpoint in KV-backed history.
func (m *Manager) CreateCheckpoint(ctx context.Context, featureName, code, sessionID string) Result {
	passed, diagnostic, err := m.verifyTestsPass(ctx)
	if err != nil {
		return Result{FeatureName: featureName, Success: false, Error: err.Error()}
	}
	if !passed {
		return Result{FeatureName: featureName, Success: false, Error: diagnostic}
	}

	message := m.buildCommitMessage(featureName, code)
	commitHash, err := m.commitChanges(ctx, message)
	if err != nil {
		return Result{FeatureName: featureName, Success: false, Error: err.Error()}
	}

	if m.tracker != nil {
		if _, err := m.tracker.UpdateFeatureStatus(featureName, true); err != nil {
			return Result{FeatureName: featureName, Success: false, Error: fmt.Sprintf("updating feature status: %v", err)}
		}
		m.tracker.LogProgress(fmt.Sprintf("Checkpoint created for '%s' (commit %s)", featureName, commitHash))
	}

	if sessionID != "" && m.kv != nil {
		if err := m.recordHistory(ctx, sessionID, featureName, commitHash); err != nil {
			return Result{FeatureName: featureName, Success: true, CommitHash: commitHash, Error: fmt.Sprintf("checkpoint committed but history not recorded: %v", err)}
		}
	}

	return Result{FeatureName: featureName, Success: true, CommitHash: commitHash}
}

// verifyTestsPass tries each command in testCommands in order. A checkpoint
// requires positive evidence of pass: a recognised success token, no
// failure tokens, and a zero exit code. If no runnable framework is found
// at all, it refuses rather than assuming success (spec §4.8 "absence of
// any runnable test framework -> refuse with a diagnostic").
func (m *Manager) verifyTestsPass(ctx context.Context) (bool, string, error) {
	var attempts []string

	for _, args := range testCommands {
		runCtx, cancel := context.WithTimeout(ctx, testCommandTimeout)
		out, runErr := m.runner.Run(runCtx, worker.Command{Name: args[0], Args: args[1:], Dir: m.repoDir})
		cancel()
		if runErr != nil && bytes.Equal(out, nil) {
			// Command not found or failed to even start; try the next one.
			attempts = append(attempts, fmt.Sprintf("%s: not runnable (%v)", strings.Join(args, " "), runErr))
			continue
		}

		lower := strings.ToLower(string(out))
		if containsAny(lower, failureIndicators) {
			return false, fmt.Sprintf("tests failed via `%s`:\n%s", strings.Join(args, " "), truncate(string(out), 2000)), nil
		}
		if runErr == nil && containsAny(lower, successIndicators) {
			return true, "", nil
		}
		if runErr == nil {
			// Zero exit, no recognised token either way: treat as inconclusive
			// evidence and try the next framework rather than assuming pass.
			attempts = append(attempts, fmt.Sprintf("%s: no success token found", strings.Join(args, " ")))
			continue
		}
		attempts = append(attempts, fmt.Sprintf("%s: exited non-zero", strings.Join(args, " ")))
	}

	return false, fmt.Sprintf("no test framework produced positive evidence of a pass (tried: %s)", strings.Join(attempts, "; ")), nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

var (
	defRegex   = regexp.MustCompile(`(?m)^\s*(func|def)\s`)
	classRegex = regexp.MustCompile(`(?m)^\s*(type\s+\w+\s+struct|class)\s`)
)

// buildCommitMessage matches checkpoint_manager.py's
// _generate_commit_message / _summarize_code_changes exactly: a
// conventional-commit subject plus an optional code-derived summary.
func (m *Manager) buildCommitMessage(featureName, code string) string {
	message := fmt.Sprintf("feat: Complete %s\n\n", featureName)

	if code != "" {
		message += m.summarizeCodeChanges(code) + "\n\n"
	}

	message += "Generated by MAKER Multi-Agent System"
	return message
}

func (m *Manager) summarizeCodeChanges(code string) string {
	funcs := len(defRegex.FindAllString(code, -1))
	types := len(classRegex.FindAllString(code, -1))
	if funcs > 0 || types > 0 {
		return fmt.Sprintf("Added %d function(s) and %d type(s).", funcs, types)
	}

	lines := strings.Count(code, "\n") + 1
	if lines > 10 {
		return fmt.Sprintf("Changed approximately %d lines.", lines)
	}
	return ""
}

// commitChanges stages all changes and commits, returning the new commit
// hash, or an empty hash with no error if there was nothing to commit
// (spec §4.8 "No changes to commit -> return null id with log note").
func (m *Manager) commitChanges(ctx context.Context, message string) (string, error) {
	runGit := func(args ...string) ([]byte, error) {
		runCtx, cancel := context.WithTimeout(ctx, gitCommandTimeout)
		defer cancel()
		return m.runner.Run(runCtx, worker.Command{Name: "git", Args: args, Dir: m.repoDir})
	}

	if _, err := runGit("add", "."); err != nil {
		return "", fmt.Errorf("checkpoint: git add: %w", err)
	}

	status, err := runGit("status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("checkpoint: git status: %w", err)
	}
	if strings.TrimSpace(string(status)) == "" {
		if m.tracker != nil {
			m.tracker.LogProgress("No changes to commit")
		}
		return "", nil
	}

	if _, err := runGit("commit", "-m", message); err != nil {
		return "", fmt.Errorf("checkpoint: git commit: %w", err)
	}

	hashOut, err := runGit("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("checkpoint: git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(hashOut)), nil
}

// History is one KV-recorded checkpoint entry.
type History struct {
	FeatureName string    `json:"feature_name"`
	CommitHash  string    `json:"commit_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

func (m *Manager) recordHistory(ctx context.Context, sessionID, featureName, commitHash string) error {
	entry := History{FeatureName: featureName, CommitHash: commitHash, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal history entry: %w", err)
	}
	key := kv.CheckpointKey(sessionID, featureName)
	return m.kv.Set(ctx, key, data, kv.TTLCheckpoint)
}

// GetCheckpointHistory returns this session's recorded checkpoints for a
// feature, or ErrNotFound via kv.ErrNotFound if none was recorded (TTL
// expired or never created).
func (m *Manager) GetCheckpointHistory(ctx context.Context, sessionID, featureName string) (History, error) {
	data, err := m.kv.Get(ctx, kv.CheckpointKey(sessionID, featureName))
	if err != nil {
		return History{}, err
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, fmt.Errorf("checkpoint: unmarshal history entry: %w", err)
	}
	return h, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
