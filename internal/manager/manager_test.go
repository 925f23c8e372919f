package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/config"
	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

type fakeTask struct {
	task.Base
	Cold       map[string]string `json:"cold,omitempty"`
	Privileged bool              `json:"privileged"`

	prepareErr  error
	rollbackErr error
	execStatus  task.Status
	execErr     error
	onPrepare   func()
	onExecute   func()

	prepared   int
	executed   int
	rolledBack int
}

func newFakeTask(id string) *fakeTask {
	t := &fakeTask{execStatus: task.StatusSuccessful}
	t.TaskID = id
	return t
}

func (f *fakeTask) Kind() string                      { return "FakeTask" }
func (f *fakeTask) Configure(map[string]string) error { return nil }
func (f *fakeTask) MustRunPrivileged(task.Env) bool   { return f.Privileged }
func (f *fakeTask) Rollback(context.Context, task.Env) error {
	f.rolledBack++
	return f.rollbackErr
}

func (f *fakeTask) Prepare(context.Context, task.Env, source.Source) error {
	f.prepared++
	if f.onPrepare != nil {
		f.onPrepare()
	}
	if f.prepareErr != nil {
		return f.prepareErr
	}
	f.ExecStatus = task.StatusPrepared
	return nil
}

func (f *fakeTask) Execute(context.Context, task.Env, bool) (task.Status, error) {
	f.executed++
	if f.onExecute != nil {
		f.onExecute()
	}
	f.ExecStatus = f.execStatus
	return f.execStatus, f.execErr
}

func (f *fakeTask) ColdUpdates() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range f.Cold {
			if !yield(k, v) {
				return
			}
		}
	}
}

type fixedLeaf bool

func (l fixedLeaf) Kind() string           { return "Fixed" }
func (l fixedLeaf) Met(condition.Env) bool { return bool(l) }

// hookLeaf is met and runs onMet each time it is evaluated.
type hookLeaf struct {
	calls *int
	onMet func()
}

func (l hookLeaf) Kind() string { return "Hook" }
func (l hookLeaf) Met(condition.Env) bool {
	*l.calls++
	if l.onMet != nil {
		l.onMet()
	}
	return true
}

type fakeReader struct {
	tasks []task.Task
	err   error
	block chan struct{}
}

func (r *fakeReader) Read(string) ([]task.Task, error) {
	if r.block != nil {
		<-r.block
	}
	return r.tasks, r.err
}

type fakeHandoff struct {
	mu   sync.Mutex
	reqs []ipc.Request
	err  error
}

func (h *fakeHandoff) Send(_ context.Context, req ipc.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return h.err
}

type fakeFS struct {
	osFileSystem
	unwritable map[string]bool
	failMkdir  map[string]error
	removed    []string
}

func (f *fakeFS) Writable(dir string) bool {
	if f.unwritable[dir] {
		return false
	}
	return f.osFileSystem.Writable(dir)
}

func (f *fakeFS) MkdirAll(path string, perm os.FileMode) error {
	if err, ok := f.failMkdir[path]; ok {
		return err
	}
	return f.osFileSystem.MkdirAll(path, perm)
}

func (f *fakeFS) RemoveAll(path string) error {
	f.removed = append(f.removed, path)
	return f.osFileSystem.RemoveAll(path)
}

type harness struct {
	m       *Manager
	cfg     *config.Config
	reader  *fakeReader
	handoff *fakeHandoff
	exits   []int
	dataDir string
}

func newHarness(t *testing.T, tasks ...task.Task) *harness {
	t.Helper()
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	helper := filepath.Join(root, "helper-bin")
	require.NoError(t, os.WriteFile(helper, []byte("#!/bin/sh\n"), 0o755))

	cfg := config.Default()
	cfg.ApplicationPath = filepath.Join(appDir, "app")
	cfg.TempFolder = filepath.Join(root, "tmp")
	cfg.BackupFolder = filepath.Join(appDir, "Backup")
	cfg.HelperPath = helper

	h := &harness{
		cfg:     cfg,
		reader:  &fakeReader{tasks: tasks},
		handoff: &fakeHandoff{},
		dataDir: filepath.Join(root, "data"),
	}
	h.m = New(cfg,
		WithReader(h.reader),
		WithSource(source.NewMemory("<Feed/>")),
		WithHandoff(h.handoff),
		WithExit(func(code int) { h.exits = append(h.exits, code) }),
	)
	h.m.chdir = func(string) error { return nil }
	h.m.userDataDir = func() (string, error) { return h.dataDir, nil }
	h.m.pid = func() int { return 4242 }
	return h
}

func TestCheckSelectsTasksWithMetConditions(t *testing.T) {
	met := newFakeTask("met")
	unmet := newFakeTask("unmet")
	unmet.SetConditions(condition.NewLeaf(fixedLeaf(false)))

	h := newHarness(t, met, unmet)
	found, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, StateChecked, h.m.State())
	require.Len(t, h.m.Pending(), 1)
	require.Equal(t, "met", h.m.Pending()[0].ID())

	ok, err := h.m.Prepare(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.m.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	require.Zero(t, unmet.prepared)
	require.Zero(t, unmet.executed)
	require.Equal(t, 1, met.executed)
}

func TestCheckKeepsPreviousListOnFailure(t *testing.T) {
	first := newFakeTask("first")
	h := newHarness(t, first)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, h.m.Pending(), 1)

	parseErr := feederrors.NewParseError("feed", 3, errors.New("bad element"))
	h.reader.tasks = []task.Task{newFakeTask("a"), newFakeTask("b")}
	h.reader.err = parseErr

	found, err := h.m.Check(context.Background(), nil)
	require.False(t, found)
	require.ErrorIs(t, err, parseErr)
	require.ErrorIs(t, h.m.LastError(), parseErr)
	require.Len(t, h.m.Pending(), 1)
	require.Equal(t, "first", h.m.Pending()[0].ID())
}

func TestCheckRequiresReaderAndSource(t *testing.T) {
	h := newHarness(t)
	h.m.reader = nil
	_, err := h.m.Check(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoFeedReader)

	h = newHarness(t)
	h.m.source = nil
	_, err = h.m.Check(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoSource)
}

func TestCheckEmptyFeedReportsNoUpdates(t *testing.T) {
	h := newHarness(t)
	found, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, found)

	ok, err := h.m.Prepare(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, ErrNoUpdates)
}

func TestPrepareStopsAtFirstFailure(t *testing.T) {
	a := newFakeTask("a")
	b := newFakeTask("b")
	b.prepareErr = errors.New("checksum mismatch")
	c := newFakeTask("c")
	h := newHarness(t, a, b, c)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	ok, err := h.m.Prepare(context.Background())
	require.False(t, ok)

	var execErr *feederrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "b", execErr.TaskID)
	require.Equal(t, 1, a.prepared)
	require.Equal(t, 1, b.prepared)
	require.Zero(t, c.prepared)
	require.Equal(t, StateChecked, h.m.State())
}

func TestOperationsRejectedInWrongState(t *testing.T) {
	h := newHarness(t, newFakeTask("a"))

	_, err := h.m.Prepare(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = h.m.Apply(context.Background(), ApplyOptions{})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestApplyWithoutColdUpdates(t *testing.T) {
	ok := newFakeTask("ok")
	bad := newFakeTask("bad")
	bad.execErr = errors.New("disk full")
	h := newHarness(t, ok, bad)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Prepare(context.Background())
	require.NoError(t, err)

	applied, err := h.m.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, StateAppliedSuccessfully, h.m.State())
	require.Empty(t, h.m.Pending())
	require.Empty(t, h.handoff.reqs)
	require.Empty(t, h.exits)

	report := h.m.LastReport()
	require.Equal(t, 1, report.Executed)
	require.Equal(t, 1, report.Failed)
	require.Error(t, h.m.LastError())
	require.DirExists(t, h.cfg.BackupFolder)
}

func TestApplyWithColdUpdatesHandsOff(t *testing.T) {
	hot := newFakeTask("hot")
	cold := newFakeTask("cold")
	cold.execStatus = task.StatusRequiresAppRestart
	cold.Cold = map[string]string{"bin/app": "tmp/1"}
	cold.Privileged = true
	h := newHarness(t, hot, cold)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Prepare(context.Background())
	require.NoError(t, err)

	applied, err := h.m.Apply(context.Background(), ApplyOptions{Relaunch: true, HelperLogging: true})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, []int{0}, h.exits)
	require.Equal(t, StateRollbackRequired, h.m.State())

	require.Len(t, h.handoff.reqs, 1)
	req := h.handoff.reqs[0]
	require.Equal(t, "FeedUpdateProcess-4242", req.Channel)
	require.True(t, req.Process.Elevated)
	require.Equal(t, []string{HelperLogFlag}, req.Process.Args)
	require.Equal(t, filepath.Join(h.cfg.TempFolder, h.cfg.UpdateExecutableName), req.Process.Path)
	require.FileExists(t, req.Process.Path)

	var obj transfer.Object
	require.NoError(t, json.Unmarshal(req.Payload, &obj))
	require.Equal(t, 4242, obj.HostPID)
	require.True(t, obj.Relaunch)
	require.Len(t, obj.Tasks, 2)
	require.Equal(t, "tmp/1", obj.ColdUpdates["bin/app"])
	require.Equal(t, h.cfg.ApplicationPath, obj.Env(transfer.EnvAppPath))
	require.Equal(t, "true", obj.Env(transfer.EnvRelaunchApplication))
	require.Equal(t, h.cfg.BackupFolder, obj.Config.BackupFolder)
}

func TestApplyColdUpdateCollisionLastWriteWins(t *testing.T) {
	first := newFakeTask("first")
	first.execStatus = task.StatusRequiresAppRestart
	first.Cold = map[string]string{"shared": "one"}
	second := newFakeTask("second")
	second.execStatus = task.StatusRequiresAppRestart
	second.Cold = map[string]string{"shared": "two"}
	h := newHarness(t, first, second)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)

	require.Len(t, h.handoff.reqs, 1)
	var obj transfer.Object
	require.NoError(t, json.Unmarshal(h.handoff.reqs[0].Payload, &obj))
	require.Equal(t, "two", obj.ColdUpdates["shared"])
}

func TestApplyHandoffFailureKeepsRollbackState(t *testing.T) {
	cold := newFakeTask("cold")
	cold.execStatus = task.StatusRequiresAppRestart
	cold.Cold = map[string]string{"k": "v"}
	h := newHarness(t, cold)
	h.handoff.err = feederrors.NewHandoffError("connect", ipc.ErrChildExited)

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	applied, err := h.m.Apply(context.Background(), ApplyOptions{})
	require.False(t, applied)
	require.ErrorIs(t, err, ipc.ErrChildExited)
	require.Empty(t, h.exits)
	require.Equal(t, StateRollbackRequired, h.m.State())

	require.NoError(t, h.m.RollbackUpdates(context.Background()))
	require.Equal(t, 1, cold.rolledBack)
	require.Equal(t, StateNotChecked, h.m.State())
}

func TestRollbackUpdatesIsBestEffort(t *testing.T) {
	a := newFakeTask("a")
	a.execErr = errors.New("write failed")
	a.rollbackErr = errors.New("backup missing")
	b := newFakeTask("b")
	b.execStatus = task.StatusRequiresAppRestart
	b.Cold = map[string]string{"k": "v"}
	h := newHarness(t, a, b)
	h.handoff.err = feederrors.NewHandoffError("start", errors.New("declined"))

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)

	require.NoError(t, h.m.RollbackUpdates(context.Background()))
	require.Equal(t, 1, a.rolledBack)
	require.Equal(t, 1, b.rolledBack)
	require.Equal(t, StateNotChecked, h.m.State())

	var execErr *feederrors.ExecutionError
	require.ErrorAs(t, h.m.LastError(), &execErr)
	require.Equal(t, "a", execErr.TaskID)
	require.Equal(t, "rollback", execErr.Phase)
}

func TestApplyBackupFallback(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(h *harness, f *fakeFS)
		wantFallback bool
		wantErr      error
	}{
		{
			name:  "configured folder usable",
			setup: func(*harness, *fakeFS) {},
		},
		{
			name: "parent not writable",
			setup: func(h *harness, f *fakeFS) {
				f.unwritable[filepath.Dir(h.cfg.BackupFolder)] = true
			},
			wantFallback: true,
		},
		{
			name: "create denied",
			setup: func(h *harness, f *fakeFS) {
				f.failMkdir[h.cfg.BackupFolder] = fs.ErrPermission
			},
			wantFallback: true,
		},
		{
			name: "fallback unavailable",
			setup: func(h *harness, f *fakeFS) {
				f.unwritable[filepath.Dir(h.cfg.BackupFolder)] = true
				f.failMkdir[filepath.Join(h.dataDir, "FeedUpdateProcessUpdateBackups")] = fs.ErrPermission
			},
			wantErr: ErrBackupUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFakeTask("a")
			h := newHarness(t, a)
			fakeFs := &fakeFS{unwritable: map[string]bool{}, failMkdir: map[string]error{}}
			h.m.fs = fakeFs
			tt.setup(h, fakeFs)

			_, err := h.m.Check(context.Background(), nil)
			require.NoError(t, err)
			applied, err := h.m.Apply(context.Background(), ApplyOptions{})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.False(t, applied)
				require.Equal(t, StateChecked, h.m.State())
				require.Zero(t, a.executed)
				return
			}
			require.NoError(t, err)
			require.True(t, applied)
			want := h.cfg.BackupFolder
			if tt.wantFallback {
				want = filepath.Join(h.dataDir, "FeedUpdateProcessUpdateBackups")
			}
			require.Equal(t, want, h.m.BackupFolder())
			require.DirExists(t, want)
		})
	}
}

func TestSetBackupFolder(t *testing.T) {
	h := newHarness(t, newFakeTask("a"))

	require.NoError(t, h.m.SetBackupFolder("old-files/"))
	require.Equal(t, filepath.Join(h.cfg.TempFolder, "old-files"), h.m.BackupFolder())

	abs := filepath.Join(t.TempDir(), "bk")
	require.NoError(t, h.m.SetBackupFolder(abs+string(filepath.Separator)))
	require.Equal(t, abs, h.m.BackupFolder())

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Prepare(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, h.m.SetBackupFolder(abs), ErrUpdateStarted)
}

func TestAsyncCheckAndBusy(t *testing.T) {
	h := newHarness(t, newFakeTask("a"), newFakeTask("b"))
	h.reader.block = make(chan struct{})

	results := make(chan int, 1)
	require.NoError(t, h.m.CheckAsync(context.Background(), nil, func(count int, err error) {
		if err != nil {
			count = -2
		}
		results <- count
	}))
	require.True(t, h.m.IsWorking())

	_, err := h.m.Check(context.Background(), nil)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, h.m.PrepareAsync(context.Background(), nil), ErrBusy)

	close(h.reader.block)
	select {
	case count := <-results:
		require.Equal(t, 2, count)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}
	require.Eventually(t, func() bool { return !h.m.IsWorking() }, time.Second, 10*time.Millisecond)

	done := make(chan bool, 1)
	require.NoError(t, h.m.PrepareAsync(context.Background(), func(ok bool, err error) {
		done <- ok && err == nil
	}))
	require.True(t, <-done)
	require.Equal(t, StatePrepared, h.m.State())
}

func TestCheckAsyncReportsFailure(t *testing.T) {
	h := newHarness(t)
	h.reader.err = errors.New("broken")

	results := make(chan int, 1)
	require.NoError(t, h.m.CheckAsync(context.Background(), nil, func(count int, err error) {
		if err != nil {
			results <- count
		}
	}))
	require.Equal(t, -1, <-results)
	require.Error(t, h.m.LastError())
}

func TestAbortStopsBetweenTasks(t *testing.T) {
	a := newFakeTask("a")
	b := newFakeTask("b")
	h := newHarness(t, a, b)
	a.onExecute = func() { h.m.Abort(false) }

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	applied, err := h.m.Apply(context.Background(), ApplyOptions{})
	require.False(t, applied)
	require.ErrorIs(t, err, ErrAborted)
	require.Equal(t, 1, a.executed)
	require.Zero(t, b.executed)
	require.Equal(t, StateRollbackRequired, h.m.State())
}

func TestCheckStopsBetweenTasks(t *testing.T) {
	tests := []struct {
		name    string
		stop    func(h *harness, cancel context.CancelFunc)
		wantErr error
	}{
		{
			name:    "abort",
			stop:    func(h *harness, _ context.CancelFunc) { h.m.Abort(false) },
			wantErr: ErrAborted,
		},
		{
			name:    "context cancelled",
			stop:    func(_ *harness, cancel context.CancelFunc) { cancel() },
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newFakeTask("first"))
			_, err := h.m.Check(context.Background(), nil)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var firstCalls, secondCalls int
			a := newFakeTask("a")
			a.SetConditions(condition.NewLeaf(hookLeaf{calls: &firstCalls, onMet: func() { tt.stop(h, cancel) }}))
			b := newFakeTask("b")
			b.SetConditions(condition.NewLeaf(hookLeaf{calls: &secondCalls}))
			h.reader.tasks = []task.Task{a, b}

			found, err := h.m.Check(ctx, nil)
			require.False(t, found)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, h.m.LastError(), tt.wantErr)
			require.Equal(t, 1, firstCalls)
			require.Zero(t, secondCalls)

			require.Equal(t, StateChecked, h.m.State())
			require.Len(t, h.m.Pending(), 1)
			require.Equal(t, "first", h.m.Pending()[0].ID())
			require.False(t, h.m.IsWorking())
		})
	}
}

func TestPrepareAbortStopsBetweenTasks(t *testing.T) {
	a := newFakeTask("a")
	b := newFakeTask("b")
	h := newHarness(t, a, b)
	a.onPrepare = func() { h.m.Abort(false) }

	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)

	ok, err := h.m.Prepare(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, h.m.LastError(), ErrAborted)
	require.Equal(t, 1, a.prepared)
	require.Zero(t, b.prepared)
	require.Equal(t, StateChecked, h.m.State())
	require.Len(t, h.m.Pending(), 2)

	ok, err = h.m.Prepare(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, b.prepared)
	require.Equal(t, StatePrepared, h.m.State())
}

func TestCleanUpResetsCycle(t *testing.T) {
	h := newHarness(t, newFakeTask("a"))
	_, err := h.m.Check(context.Background(), nil)
	require.NoError(t, err)
	_, err = h.m.Prepare(context.Background())
	require.NoError(t, err)
	require.DirExists(t, h.cfg.TempFolder)

	h.m.CleanUp()
	require.Equal(t, StateNotChecked, h.m.State())
	require.Empty(t, h.m.Pending())
	require.NoDirExists(t, h.cfg.TempFolder)
	require.False(t, h.m.IsWorking())
}
