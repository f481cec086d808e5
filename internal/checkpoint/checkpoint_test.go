package checkpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/progress"
	"github.com/arclight-labs/maker/internal/worker"
)

type scriptedRunner struct {
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func (r *scriptedRunner) key(cmd worker.Command) string {
	return cmd.Name + " " + strings.Join(cmd.Args, " ")
}

func (r *scriptedRunner) Run(_ context.Context, cmd worker.Command) ([]byte, error) {
	k := r.key(cmd)
	r.calls = append(r.calls, k)
	if err, ok := r.errs[k]; ok {
		return r.responses[k], err
	}
	return r.responses[k], nil
}

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return v, nil
}
func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}
func (m *memKV) Del(_ context.Context, key string) error { delete(m.data, key); return nil }
func (m *memKV) Scan(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
func (m *memKV) Tx(_ context.Context, key string, fn func([]byte, bool) ([]byte, time.Duration, error)) error {
	current, found := m.data[key]
	next, ttl, err := fn(current, found)
	if err != nil {
		return err
	}
	_ = ttl
	m.data[key] = next
	return nil
}
func (m *memKV) Close() error { return nil }

func TestCreateCheckpoint_HappyPath(t *testing.T) {
	runner := &scriptedRunner{
		responses: map[string][]byte{
			"python -m pytest":          []byte("5 passed in 1.2s"),
			"git add .":                 nil,
			"git status --porcelain":    []byte(" M internal/foo.go"),
			"git rev-parse HEAD":        []byte("abc1234\n"),
		},
		errs: map[string]error{},
	}

	dir := t.TempDir()
	tracker, err := progress.New(dir)
	require.NoError(t, err)
	require.NoError(t, tracker.AddFeature("auth", "user auth", 1))

	store := newMemKV()
	mgr := New(runner, tracker, store, dir)

	result := mgr.CreateCheckpoint(context.Background(), "auth", "func Foo() {}\nfunc Bar() {}", "sess-1")
	require.True(t, result.Success)
	assert.Equal(t, "abc1234", result.CommitHash)

	next, err := tracker.GetNextFeature()
	require.NoError(t, err)
	assert.Nil(t, next)

	hist, err := mgr.GetCheckpointHistory(context.Background(), "sess-1", "auth")
	require.NoError(t, err)
	assert.Equal(t, "abc1234", hist.CommitHash)
}

func TestCreateCheckpoint_TestsFail(t *testing.T) {
	runner := &scriptedRunner{
		responses: map[string][]byte{
			"python -m pytest": []byte("1 failed, 4 passed"),
		},
	}
	dir := t.TempDir()
	tracker, err := progress.New(dir)
	require.NoError(t, err)
	require.NoError(t, tracker.AddFeature("auth", "user auth", 1))

	mgr := New(runner, tracker, newMemKV(), dir)
	result := mgr.CreateCheckpoint(context.Background(), "auth", "", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tests failed")

	next, err := tracker.GetNextFeature()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "auth", next.Name)
}

func TestCreateCheckpoint_NoRunnableFramework(t *testing.T) {
	runner := &scriptedRunner{
		responses: map[string][]byte{},
		errs: map[string]error{
			"python -m pytest":              errors.New("exec: \"python\": not found"),
			"pytest":                        errors.New("exec: \"pytest\": not found"),
			"python -m unittest discover":   errors.New("exec: \"python\": not found"),
			"npm test":                      errors.New("exec: \"npm\": not found"),
		},
	}
	dir := t.TempDir()
	tracker, err := progress.New(dir)
	require.NoError(t, err)

	mgr := New(runner, tracker, newMemKV(), dir)
	result := mgr.CreateCheckpoint(context.Background(), "auth", "", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no test framework produced positive evidence")
}

func TestCreateCheckpoint_NoChangesToCommit(t *testing.T) {
	runner := &scriptedRunner{
		responses: map[string][]byte{
			"python -m pytest":       []byte("3 passed"),
			"git add .":              nil,
			"git status --porcelain": []byte(""),
		},
	}
	dir := t.TempDir()
	tracker, err := progress.New(dir)
	require.NoError(t, err)
	require.NoError(t, tracker.AddFeature("auth", "user auth", 1))

	mgr := New(runner, tracker, newMemKV(), dir)
	result := mgr.CreateCheckpoint(context.Background(), "auth", "", "")
	require.True(t, result.Success)
	assert.Empty(t, result.CommitHash)
}

func TestBuildCommitMessage(t *testing.T) {
	mgr := &Manager{}
	msg := mgr.buildCommitMessage("auth", "func Foo() {}\nfunc Bar() {}")
	assert.Contains(t, msg, "feat: Complete auth")
	assert.Contains(t, msg, "Generated by MAKER Multi-Agent System")
	assert.Contains(t, msg, "2 function")
}
