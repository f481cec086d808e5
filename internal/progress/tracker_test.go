package progress

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
}

func TestAddFeature_NoOpIfExists(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, tr.AddFeature("auth", "user authentication", 1))
	require.NoError(t, tr.AddFeature("auth", "duplicate description", 5))

	next, err := tr.GetNextFeature()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "user authentication", next.Description)
	assert.Equal(t, 1, next.Priority)
}

func TestGetNextFeature_PriorityThenAlphabetical(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, tr.AddFeature("zeta", "z", 2))
	require.NoError(t, tr.AddFeature("beta", "b", 1))
	require.NoError(t, tr.AddFeature("alpha", "a", 1))

	next, err := tr.GetNextFeature()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "alpha", next.Name)
}

func TestUpdateFeatureStatus(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, tr.AddFeature("auth", "user auth", 1))

	found, err := tr.UpdateFeatureStatus("auth", true)
	require.NoError(t, err)
	assert.True(t, found)

	next, err := tr.GetNextFeature()
	require.NoError(t, err)
	assert.Nil(t, next)

	found, err = tr.UpdateFeatureStatus("missing", true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetProgressSummary(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, tr.AddFeature("auth", "user auth", 1))
	require.NoError(t, tr.AddFeature("billing", "billing flow", 2))
	_, err = tr.UpdateFeatureStatus("auth", true)
	require.NoError(t, err)

	summary, err := tr.GetProgressSummary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalFeatures)
	assert.Equal(t, 1, summary.PassedFeatures)
	assert.Equal(t, "billing", summary.NextFeature)
	assert.InDelta(t, 0.5, summary.CompletionRate, 0.0001)
}

func TestVerifyCleanState_NoGit(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	assert.True(t, tr.VerifyCleanState(context.Background()))
}

func TestVerifyCleanState_DirtyWorkingTree(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	tr, err := New(dir)
	require.NoError(t, err)

	assert.False(t, tr.VerifyCleanState(context.Background()))
}

func TestVerifyCleanState_ErrorIndicatorInRecentProgress(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	tr.LogProgress("ran into an unexpected Exception while compiling")
	assert.False(t, tr.VerifyCleanState(context.Background()))
}

func TestCreateResumeContext_Render(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, tr.AddFeature("auth", "user auth", 1))
	tr.LogProgress("started work")

	resumeCtx, err := tr.CreateResumeContext(context.Background())
	require.NoError(t, err)

	rendered := resumeCtx.Render()
	assert.Contains(t, rendered, "resuming work")
	assert.Contains(t, rendered, "started work")
	assert.Contains(t, rendered, "auth")
}
