// Package manager drives the update cycle: check the feed, prepare the
// tasks it selects, apply them and hand off to the cold-update helper when
// a task cannot be applied while the application runs.
package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/config"
	"github.com/alexisbeaulieu97/feedupdate/internal/feed"
	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
)

// State is the position of the manager in the update cycle.
type State int32

const (
	StateNotChecked State = iota
	StateChecked
	StatePrepared
	StateAppliedSuccessfully
	StateRollbackRequired
)

func (s State) String() string {
	switch s {
	case StateNotChecked:
		return "not_checked"
	case StateChecked:
		return "checked"
	case StatePrepared:
		return "prepared"
	case StateAppliedSuccessfully:
		return "applied_successfully"
	case StateRollbackRequired:
		return "rollback_required"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when an operation is already running.
	ErrBusy = errors.New("update manager is busy")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrNoUpdates is returned by Prepare when nothing is pending.
	ErrNoUpdates = errors.New("no updates to process")
	// ErrNoFeedReader is returned when no feed reader was configured.
	ErrNoFeedReader = errors.New("no feed reader configured")
	// ErrNoSource is returned when neither the call nor the manager has a source.
	ErrNoSource = errors.New("no update source configured")
	// ErrUpdateStarted is returned when settings change after an update began.
	ErrUpdateStarted = errors.New("update process has already started")
	// ErrBackupUnavailable is returned when no backup folder can be created.
	ErrBackupUnavailable = errors.New("backup folder unavailable")
	// ErrAborted is returned when an operation stops because Abort was called.
	ErrAborted = errors.New("update cycle aborted")
)

// ApplyOptions controls the cold-update handoff.
type ApplyOptions struct {
	Relaunch      bool
	HelperLogging bool
	ShowConsole   bool
}

// Report summarises the last Apply.
type Report struct {
	Executed    int
	Failed      int
	ColdUpdates int
	Privileged  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithReader sets the feed reader.
func WithReader(r feed.Reader) Option { return func(m *Manager) { m.reader = r } }

// WithSource sets the default update source.
func WithSource(s source.Source) Option { return func(m *Manager) { m.source = s } }

// WithLogger sets the logger. Its journal is shipped to the helper.
func WithLogger(l *logger.Logger) Option { return func(m *Manager) { m.log = l } }

// WithHandoff replaces the helper handoff.
func WithHandoff(h ipc.Handoff) Option { return func(m *Manager) { m.handoff = h } }

// WithExit replaces the function called after a successful handoff.
func WithExit(fn func(int)) Option { return func(m *Manager) { m.exit = fn } }

// WithProgress sets the task progress callback.
func WithProgress(fn func(task.Progress)) Option { return func(m *Manager) { m.progress = fn } }

// WithVersionProber sets how file versions are read during Check.
func WithVersionProber(p condition.VersionProber) Option {
	return func(m *Manager) { m.versions = p }
}

// WithRegistryStore sets the registry used by registry tasks.
func WithRegistryStore(s platform.RegistryStore) Option {
	return func(m *Manager) { m.registryStore = s }
}

// WithTaskRegistry sets the task kinds used to encode the transfer object.
func WithTaskRegistry(r *task.Registry) Option { return func(m *Manager) { m.tasks = r } }

type fileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	Writable(dir string) bool
	IsDir(path string) bool
}

type osFileSystem struct{}

func (osFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (osFileSystem) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (osFileSystem) Writable(dir string) bool                     { return platform.Writable(dir) }
func (osFileSystem) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

type job struct {
	done chan struct{}
}

// Manager owns one update cycle. Operations on a Manager are serialised:
// a call made while another runs returns ErrBusy.
type Manager struct {
	cfg *config.Config

	reader        feed.Reader
	source        source.Source
	log           *logger.Logger
	handoff       ipc.Handoff
	exit          func(int)
	progress      func(task.Progress)
	versions      condition.VersionProber
	registryStore platform.RegistryStore
	tasks         *task.Registry

	fs          fileSystem
	chdir       func(string) error
	userDataDir func() (string, error)
	pid         func() int

	state atomic.Int32
	stop  atomic.Bool

	// mu guards the pending list and the folders for the duration of an
	// operation body.
	mu           sync.Mutex
	pending      []task.Task
	checked      source.Source
	backupFolder string
	report       Report

	jobMu sync.Mutex
	job   *job

	errMu   sync.Mutex
	lastErr error
}

// New returns a manager for cfg. cfg should already be resolved.
func New(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		exit:         os.Exit,
		tasks:        task.DefaultRegistry(),
		fs:           osFileSystem{},
		chdir:        os.Chdir,
		userDataDir:  platform.UserDataDir,
		pid:          os.Getpid,
		backupFolder: cfg.BackupFolder,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.handoff == nil {
		launcher := ipc.ExecLauncher{ElevationCommand: cfg.ElevationCommand}
		m.handoff = ipc.NewHandoff(launcher, cfg.ConnectTimeoutDuration(), m.log)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.log.WithFields(map[string]any{"state": s.String()}).Debug("update state changed")
}

// LastError returns the error recorded by the last failed operation.
func (m *Manager) LastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.errMu.Lock()
	m.lastErr = err
	m.errMu.Unlock()
}

// fail records err and returns it.
func (m *Manager) fail(err error) error {
	m.setLastError(err)
	m.log.Error(err, "update operation failed")
	return err
}

// Pending returns a copy of the tasks selected by the last Check.
func (m *Manager) Pending() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]task.Task, len(m.pending))
	copy(out, m.pending)
	return out
}

// UpdatesAvailable returns the number of pending tasks.
func (m *Manager) UpdatesAvailable() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// LastReport returns the summary of the last Apply.
func (m *Manager) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// TempFolder returns the folder downloads and the helper are staged in.
func (m *Manager) TempFolder() string { return m.cfg.TempFolder }

// BackupFolder returns the folder replaced files are backed up to.
func (m *Manager) BackupFolder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupFolder
}

// SetBackupFolder changes the backup folder. It is only allowed before
// Prepare. A relative path is taken under the temp folder.
func (m *Manager) SetBackupFolder(path string) error {
	switch m.State() {
	case StateNotChecked, StateChecked:
	default:
		return ErrUpdateStarted
	}
	path = strings.TrimRight(path, `/\`)
	if path == "" {
		return errors.New("backup folder must not be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.cfg.TempFolder, path)
	}
	m.mu.Lock()
	m.backupFolder = path
	m.mu.Unlock()
	return nil
}

// IsWorking reports whether an operation is running.
func (m *Manager) IsWorking() bool {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	return m.job != nil
}

func (m *Manager) begin() (*job, error) {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.job != nil {
		return nil, ErrBusy
	}
	m.stop.Store(false)
	m.job = &job{done: make(chan struct{})}
	return m.job, nil
}

func (m *Manager) end(j *job) {
	m.jobMu.Lock()
	if m.job == j {
		m.job = nil
	}
	m.jobMu.Unlock()
	close(j.done)
}

// Abort asks the running operation to stop before its next task. A task
// already started always finishes. With wait set, Abort blocks until the
// operation has returned.
func (m *Manager) Abort(wait bool) {
	m.stop.Store(true)
	m.jobMu.Lock()
	j := m.job
	m.jobMu.Unlock()
	if wait && j != nil {
		<-j.done
	}
}

// stopped reports whether the running operation should stop.
func (m *Manager) stopped(ctx context.Context) error {
	if m.stop.Load() {
		return ErrAborted
	}
	return ctx.Err()
}

func (m *Manager) taskEnv() task.Env {
	return task.Env{
		AppDir:       m.cfg.AppDir(),
		TempFolder:   m.cfg.TempFolder,
		BackupFolder: m.backupFolder,
		Logger:       m.log,
		Progress:     m.progress,
		Registry:     m.registryStore,
	}
}
