package coldupdate

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
)

type recorder struct {
	mu         sync.Mutex
	executed   []string
	rolledBack []string
}

type stubTask struct {
	task.Base
	Fail bool `json:"fail"`

	rec *recorder
}

func (s *stubTask) Kind() string                      { return "StubTask" }
func (s *stubTask) Configure(map[string]string) error { return nil }
func (s *stubTask) MustRunPrivileged(task.Env) bool   { return false }
func (s *stubTask) ColdUpdates() iter.Seq2[string, any] {
	return func(func(string, any) bool) {}
}

func (s *stubTask) Prepare(context.Context, task.Env, source.Source) error { return nil }

func (s *stubTask) Execute(_ context.Context, _ task.Env, coldRun bool) (task.Status, error) {
	if !coldRun {
		return task.StatusFailed, errors.New("stub only runs cold")
	}
	s.rec.mu.Lock()
	s.rec.executed = append(s.rec.executed, s.TaskID)
	s.rec.mu.Unlock()
	if s.Fail {
		return task.StatusFailed, nil
	}
	return task.StatusSuccessful, nil
}

func (s *stubTask) Rollback(context.Context, task.Env) error {
	s.rec.mu.Lock()
	s.rec.rolledBack = append(s.rec.rolledBack, s.TaskID)
	s.rec.mu.Unlock()
	return nil
}

type fakeLauncher struct {
	specs []ipc.ProcessSpec
	err   error
}

type fakeProcess struct{}

func (fakeProcess) Pid() int              { return 99 }
func (fakeProcess) Done() <-chan struct{} { return make(chan struct{}) }

func (l *fakeLauncher) Start(_ context.Context, spec ipc.ProcessSpec) (ipc.Process, error) {
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	return fakeProcess{}, nil
}

func newStubRunner(t *testing.T, rec *recorder) (*Runner, *fakeLauncher) {
	t.Helper()
	reg := task.NewRegistry()
	require.NoError(t, reg.Register("StubTask", func() task.Task { return &stubTask{rec: rec} }))
	launcher := &fakeLauncher{}
	r := NewRunner(nil)
	r.Tasks = reg
	r.Launcher = launcher
	r.waitForExit = func(context.Context, int) error { return nil }
	return r, launcher
}

func stubObject(t *testing.T, reg *task.Registry, tasks ...*stubTask) *transfer.Object {
	t.Helper()
	list := make([]task.Task, len(tasks))
	for i, s := range tasks {
		list[i] = s
	}
	envelopes, err := reg.Marshal(list)
	require.NoError(t, err)

	dir := t.TempDir()
	obj := transfer.New()
	obj.Tasks = envelopes
	obj.AppPath = filepath.Join(dir, "app")
	obj.WorkingDirectory = dir
	obj.Config.TempFolder = filepath.Join(dir, "tmp")
	obj.Config.BackupFolder = filepath.Join(dir, "backup")
	obj.HostPID = 1234
	return obj
}

func newStub(id string, status task.Status) *stubTask {
	s := &stubTask{}
	s.TaskID = id
	s.ExecStatus = status
	return s
}

func TestRunExecutesOnlyRestartTasks(t *testing.T) {
	rec := &recorder{}
	r, launcher := newStubRunner(t, rec)
	obj := stubObject(t, r.Tasks,
		newStub("hot", task.StatusSuccessful),
		newStub("cold-1", task.StatusRequiresAppRestart),
		newStub("cold-2", task.StatusRequiresAppRestart),
	)
	obj.Relaunch = true
	obj.AddEnvironment()
	require.NoError(t, os.MkdirAll(obj.Config.BackupFolder, 0o755))

	res, err := r.Run(context.Background(), obj)
	require.NoError(t, err)
	require.Equal(t, 2, res.Executed)
	require.False(t, res.RolledBack)
	require.True(t, res.Relaunched)
	require.Equal(t, []string{"cold-1", "cold-2"}, rec.executed)
	require.Empty(t, rec.rolledBack)
	require.NoDirExists(t, obj.Config.BackupFolder)

	require.Len(t, launcher.specs, 1)
	require.Equal(t, obj.AppPath, launcher.specs[0].Path)
	require.Equal(t, obj.WorkingDirectory, launcher.specs[0].Dir)
}

func TestRunRollsBackEverythingOnFailure(t *testing.T) {
	rec := &recorder{}
	r, launcher := newStubRunner(t, rec)
	failing := newStub("cold-2", task.StatusRequiresAppRestart)
	failing.Fail = true
	obj := stubObject(t, r.Tasks,
		newStub("hot", task.StatusSuccessful),
		newStub("cold-1", task.StatusRequiresAppRestart),
		failing,
		newStub("cold-3", task.StatusRequiresAppRestart),
	)
	require.NoError(t, os.MkdirAll(obj.Config.BackupFolder, 0o755))

	res, err := r.Run(context.Background(), obj)
	require.Error(t, err)
	require.True(t, res.RolledBack)
	require.False(t, res.Relaunched)
	require.Equal(t, []string{"cold-1", "cold-2"}, rec.executed)
	require.Equal(t, []string{"cold-3", "cold-2", "cold-1", "hot"}, rec.rolledBack)
	require.DirExists(t, obj.Config.BackupFolder)
	require.Empty(t, launcher.specs)
}

func TestRunStopsWhenHostKeepsRunning(t *testing.T) {
	rec := &recorder{}
	r, _ := newStubRunner(t, rec)
	r.waitForExit = func(context.Context, int) error { return context.DeadlineExceeded }
	obj := stubObject(t, r.Tasks, newStub("cold", task.StatusRequiresAppRestart))

	_, err := r.Run(context.Background(), obj)
	require.ErrorIs(t, err, ErrHostStillRunning)
	require.Empty(t, rec.executed)
}

func TestRunReportsRelaunchFailure(t *testing.T) {
	rec := &recorder{}
	r, launcher := newStubRunner(t, rec)
	launcher.err = errors.New("no such file")
	obj := stubObject(t, r.Tasks, newStub("cold", task.StatusRequiresAppRestart))
	obj.Relaunch = true

	res, err := r.Run(context.Background(), obj)
	require.Error(t, err)
	require.Equal(t, 1, res.Executed)
	require.False(t, res.Relaunched)
}

func TestRunAppliesDeferredFileUpdate(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "app")
	tempDir := filepath.Join(dir, "tmp")
	backupDir := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.MkdirAll(tempDir, 0o755))

	target := filepath.Join(appDir, "data.bin")
	staged := filepath.Join(tempDir, "staged")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(staged, []byte("new"), 0o644))

	ft := task.NewFileUpdateTask("data.bin", "data.bin", "", false)
	ft.TaskID = "file"
	ft.TempFile = staged

	env := task.Env{AppDir: appDir, TempFolder: tempDir, BackupFolder: backupDir}
	status, err := ft.Execute(context.Background(), env, false)
	require.NoError(t, err)
	require.Equal(t, task.StatusRequiresAppRestart, status)

	reg := task.DefaultRegistry()
	envelopes, err := reg.Marshal([]task.Task{ft})
	require.NoError(t, err)

	obj := transfer.New()
	obj.Tasks = envelopes
	obj.AppPath = filepath.Join(appDir, "app")
	obj.Config.TempFolder = tempDir
	obj.Config.BackupFolder = backupDir
	obj.AddEnvironment()

	r := NewRunner(nil)
	r.waitForExit = func(context.Context, int) error { return nil }
	res, err := r.Run(context.Background(), obj)
	require.NoError(t, err)
	require.Equal(t, 1, res.Executed)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}
