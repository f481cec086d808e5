// Package progress implements the progress & session manager (spec §4.7):
// a line-oriented append-only log plus a structured feature checklist per
// workspace, and the resumability protocol (orientation, resume context,
// clean-state check) built on top of them. It is grounded on
// original_source/orchestrator/progress_tracker.py and session_manager.py
// for the exact operation semantics, and on internal/brain/planner.go's
// writeDebugLog/writeMetricsLog for the Go idiom: os.MkdirAll + os.WriteFile
// with warn-and-continue on failure via log/slog, never a panic.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	progressFilename = "claude-progress.txt"
	featuresFilename  = "feature_list.json"
)

var errorIndicators = []string{"error", "failed", "exception", "traceback"}

// Tracker owns the two per-workspace files and serialises writes to them.
// Locking is process-local: the orchestrator is the sole writer of a given
// workspace's progress files, so an in-process mutex gives the same
// exclusive-append guarantee the teacher's fcntl/msvcrt dance gives a
// single Python process, without pulling in a platform-specific locking
// dependency no repo in the pack uses.
type Tracker struct {
	mu            sync.Mutex
	workspacePath string
	progressFile  string
	featuresFile  string
}

// New creates (or adopts) the two progress files under workspacePath.
func New(workspacePath string) (*Tracker, error) {
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return nil, fmt.Errorf("progress: creating workspace dir: %w", err)
	}

	t := &Tracker{
		workspacePath: workspacePath,
		progressFile:  filepath.Join(workspacePath, progressFilename),
		featuresFile:  filepath.Join(workspacePath, featuresFilename),
	}

	if _, err := os.Stat(t.progressFile); os.IsNotExist(err) {
		if err := os.WriteFile(t.progressFile, nil, 0o644); err != nil {
			return nil, fmt.Errorf("progress: creating progress file: %w", err)
		}
	}
	if _, err := os.Stat(t.featuresFile); os.IsNotExist(err) {
		if err := t.saveFeatures(nil); err != nil {
			return nil, fmt.Errorf("progress: creating feature list: %w", err)
		}
	}

	return t, nil
}

// LogProgress appends a timestamped line, best-effort: a write failure is
// logged and swallowed rather than propagated, matching the teacher's
// "better than crashing" fallback philosophy.
func (t *Tracker) LogProgress(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), msg)

	f, err := os.OpenFile(t.progressFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("progress: failed to open progress log", "file", t.progressFile, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		slog.Warn("progress: failed to append progress entry", "file", t.progressFile, "error", err)
	}
}

type featureFile struct {
	Features []featureRecord `json:"features"`
}

type featureRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Passes      bool   `json:"passes"`
	Priority    int    `json:"priority"`
}

func (t *Tracker) loadFeaturesLocked() ([]featureRecord, error) {
	data, err := os.ReadFile(t.featuresFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var file featureFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Corrupted file: teacher treats this as "start over", not a fatal
		// error, to keep a long-running session alive.
		slog.Warn("progress: feature list corrupted, resetting", "error", err)
		return nil, nil
	}
	return file.Features, nil
}

func (t *Tracker) saveFeatures(features []featureRecord) error {
	data, err := json.MarshalIndent(featureFile{Features: features}, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal feature list: %w", err)
	}
	if err := os.WriteFile(t.featuresFile, data, 0o644); err != nil {
		return fmt.Errorf("progress: write feature list: %w", err)
	}
	return nil
}

// AddFeature inserts a feature; a no-op if name already exists (spec
// §4.7 "add_feature(name, desc, priority): no-op if name exists").
func (t *Tracker) AddFeature(name, description string, priority int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	features, err := t.loadFeaturesLocked()
	if err != nil {
		return err
	}
	for _, f := range features {
		if f.Name == name {
			return nil
		}
	}

	features = append(features, featureRecord{Name: name, Description: description, Priority: priority})
	if err := t.saveFeatures(features); err != nil {
		return err
	}

	t.appendProgressLocked(fmt.Sprintf("Added feature '%s' (priority: %d)", name, priority))
	return nil
}

// UpdateFeatureStatus is an optimistic read-modify-write with bounded
// retry (spec §4.7). Since the file lives under this Tracker's own mutex,
// contention can only come from concurrent callers within this process;
// retrying still guards against a corrupt intermediate read.
func (t *Tracker) UpdateFeatureStatus(name string, passes bool) (bool, error) {
	const maxAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		found, err := t.updateFeatureStatusOnce(name, passes)
		if err == nil {
			return found, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return false, lastErr
}

func (t *Tracker) updateFeatureStatusOnce(name string, passes bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	features, err := t.loadFeaturesLocked()
	if err != nil {
		return false, err
	}

	found := false
	for i := range features {
		if features[i].Name == name {
			features[i].Passes = passes
			found = true
			break
		}
	}

	if !found {
		t.appendProgressLocked(fmt.Sprintf("Warning: Feature '%s' not found in feature list", name))
		return false, nil
	}

	if err := t.saveFeatures(features); err != nil {
		return false, err
	}

	status := "fails"
	if passes {
		status = "passes"
	}
	t.appendProgressLocked(fmt.Sprintf("Feature '%s' now %s", name, status))
	return true, nil
}

// appendProgressLocked writes a progress entry; caller must already hold
// t.mu (used from within other locked operations to avoid re-entrant
// locking on Tracker.mu).
func (t *Tracker) appendProgressLocked(msg string) {
	entry := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), msg)
	f, err := os.OpenFile(t.progressFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("progress: failed to open progress log", "file", t.progressFile, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		slog.Warn("progress: failed to append progress entry", "file", t.progressFile, "error", err)
	}
}

// Feature is the public, read-only view of a feature record.
type Feature struct {
	Name        string
	Description string
	Priority    int
	Passes      bool
}

// GetNextFeature returns the highest-priority incomplete feature (lowest
// priority number, alphabetical tiebreak), or nil if none remain (spec
// §4.7 "get_next_feature()").
func (t *Tracker) GetNextFeature() (*Feature, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextFeatureLocked()
}

func (t *Tracker) nextFeatureLocked() (*Feature, error) {
	features, err := t.loadFeaturesLocked()
	if err != nil {
		return nil, err
	}

	var incomplete []featureRecord
	for _, f := range features {
		if !f.Passes {
			incomplete = append(incomplete, f)
		}
	}
	if len(incomplete) == 0 {
		return nil, nil
	}

	sort.Slice(incomplete, func(i, j int) bool {
		if incomplete[i].Priority != incomplete[j].Priority {
			return incomplete[i].Priority < incomplete[j].Priority
		}
		return incomplete[i].Name < incomplete[j].Name
	})

	best := incomplete[0]
	return &Feature{Name: best.Name, Description: best.Description, Priority: best.Priority, Passes: best.Passes}, nil
}

// Summary is the progress snapshot spec §4.7's get_progress_summary
// returns.
type Summary struct {
	TotalFeatures      int
	PassedFeatures     int
	IncompleteFeatures int
	CompletionRate     float64
	ProgressLogEntries int
	NextFeature        string
}

// GetProgressSummary computes counts, completion rate, and the next
// feature pointer.
func (t *Tracker) GetProgressSummary() (Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	features, err := t.loadFeaturesLocked()
	if err != nil {
		return Summary{}, err
	}

	total := len(features)
	passed := 0
	for _, f := range features {
		if f.Passes {
			passed++
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(passed) / float64(total)
	}

	lines, err := t.readRecentProgressLocked(1 << 30)
	if err != nil {
		return Summary{}, err
	}

	next, err := t.nextFeatureLocked()
	if err != nil {
		return Summary{}, err
	}
	nextName := ""
	if next != nil {
		nextName = next.Name
	}

	return Summary{
		TotalFeatures:      total,
		PassedFeatures:     passed,
		IncompleteFeatures: total - passed,
		CompletionRate:     rate,
		ProgressLogEntries: len(lines),
		NextFeature:        nextName,
	}, nil
}

// ReadRecentProgress returns the last n non-empty log lines, oldest first.
func (t *Tracker) ReadRecentProgress(n int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readRecentProgressLocked(n)
}

func (t *Tracker) readRecentProgressLocked(n int) ([]string, error) {
	data, err := os.ReadFile(t.progressFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress: reading progress log: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ResumeContext holds the deterministic multi-section orientation built by
// CreateResumeContext (spec §4.7).
type ResumeContext struct {
	WorkingDirectory string
	RecentProgress   []string
	RecentCommits    []string
	Summary          Summary
	NextFeature      *Feature
}

// CreateResumeContext assembles working directory, last 10 progress
// entries, last 5 git commits, progress summary, and the next feature,
// mirroring session_manager.py's create_resume_context exactly.
func (t *Tracker) CreateResumeContext(ctx context.Context) (ResumeContext, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = t.workspacePath
	}

	recent, err := t.ReadRecentProgress(10)
	if err != nil {
		return ResumeContext{}, err
	}

	commits := gitLog(ctx, t.workspacePath, 5)

	summary, err := t.GetProgressSummary()
	if err != nil {
		return ResumeContext{}, err
	}

	next, err := t.GetNextFeature()
	if err != nil {
		return ResumeContext{}, err
	}

	return ResumeContext{
		WorkingDirectory: cwd,
		RecentProgress:   recent,
		RecentCommits:    commits,
		Summary:          summary,
		NextFeature:      next,
	}, nil
}

// Render formats a ResumeContext as the orientation text that
// Orchestrator.Resume passes in as a run's input.
func (r ResumeContext) Render() string {
	var sb strings.Builder
	sb.WriteString("You are resuming work on this project.\n\n")
	fmt.Fprintf(&sb, "Working directory: %s\n\n", r.WorkingDirectory)

	sb.WriteString("Recent progress (last 10 entries):\n")
	if len(r.RecentProgress) == 0 {
		sb.WriteString("No recent progress\n")
	} else {
		sb.WriteString(strings.Join(r.RecentProgress, "\n"))
		sb.WriteString("\n")
	}

	sb.WriteString("\nRecent git commits (last 5):\n")
	if len(r.RecentCommits) == 0 {
		sb.WriteString("No git history available\n")
	} else {
		sb.WriteString(strings.Join(r.RecentCommits, "\n"))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nProgress summary:\n- Total features: %d\n- Completed: %d\n- Remaining: %d\n- Completion rate: %.0f%%\n",
		r.Summary.TotalFeatures, r.Summary.PassedFeatures, r.Summary.IncompleteFeatures, r.Summary.CompletionRate*100)

	sb.WriteString("\nNext feature to implement:\n")
	if r.NextFeature != nil {
		fmt.Fprintf(&sb, "%s: %s (priority: %d)\n", r.NextFeature.Name, r.NextFeature.Description, r.NextFeature.Priority)
	} else {
		sb.WriteString("No incomplete features remaining\n")
	}

	sb.WriteString("\nContinue working on this feature. Do not start new features unless explicitly requested.")
	return sb.String()
}

// VerifyCleanState returns false if the VCS reports uncommitted changes or
// the last 5 progress entries contain error-indicative tokens (spec §4.7).
// If git is unavailable or times out, the state is assumed clean, matching
// session_manager.py's "not all projects use git" fallback.
func (t *Tracker) VerifyCleanState(ctx context.Context) bool {
	if dirty := gitDirty(ctx, t.workspacePath); dirty {
		return false
	}

	recent, err := t.ReadRecentProgress(5)
	if err != nil {
		return true
	}
	for _, entry := range recent {
		lower := strings.ToLower(entry)
		for _, indicator := range errorIndicators {
			if strings.Contains(lower, indicator) {
				return false
			}
		}
	}
	return true
}

func gitDirty(ctx context.Context, dir string) bool {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

func gitLog(ctx context.Context, dir string, n int) []string {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "log", fmt.Sprintf("-%d", n), "--oneline", "--no-decorate")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
