package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexisbeaulieu97/feedupdate/internal/source"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

// Check reads the feed from src, or the manager's source when src is nil,
// and keeps the tasks whose conditions hold. The pending list is replaced
// only when the whole check succeeds.
func (m *Manager) Check(ctx context.Context, src source.Source) (bool, error) {
	j, err := m.begin()
	if err != nil {
		return false, err
	}
	defer m.end(j)
	return m.check(ctx, src)
}

func (m *Manager) check(ctx context.Context, src source.Source) (bool, error) {
	m.setLastError(nil)
	if m.reader == nil {
		return false, m.fail(ErrNoFeedReader)
	}
	if src == nil {
		src = m.source
	}
	if src == nil {
		return false, m.fail(ErrNoSource)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	text, err := src.FetchFeed(ctx)
	if err != nil {
		return false, m.fail(fmt.Errorf("fetch feed: %w", err))
	}
	tasks, err := m.reader.Read(text)
	if err != nil {
		return false, m.fail(fmt.Errorf("read feed: %w", err))
	}

	env := m.taskEnv()
	var pending []task.Task
	for _, t := range tasks {
		if err := m.stopped(ctx); err != nil {
			return false, m.fail(err)
		}
		condEnv := env.ConditionEnv(t)
		condEnv.Versions = m.versions
		if !t.Conditions().Evaluate(condEnv) {
			m.log.WithFields(map[string]any{"task": t.ID()}).Debug("task conditions not met")
			continue
		}
		pending = append(pending, t)
	}
	if err := m.stopped(ctx); err != nil {
		return false, m.fail(err)
	}

	m.pending = pending
	m.checked = src
	m.setState(StateChecked)
	m.log.WithFields(map[string]any{
		"read":    len(tasks),
		"pending": len(pending),
	}).Info("update check completed")
	return len(pending) > 0, nil
}

// Prepare stages every pending task. It stops at the first failure.
func (m *Manager) Prepare(ctx context.Context) (bool, error) {
	j, err := m.begin()
	if err != nil {
		return false, err
	}
	defer m.end(j)
	return m.prepare(ctx)
}

func (m *Manager) prepare(ctx context.Context) (bool, error) {
	m.setLastError(nil)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateChecked {
		return false, m.fail(fmt.Errorf("prepare in state %s: %w", m.State(), ErrInvalidState))
	}
	if len(m.pending) == 0 {
		return false, m.fail(ErrNoUpdates)
	}
	if err := m.fs.MkdirAll(m.cfg.TempFolder, 0o755); err != nil {
		return false, m.fail(fmt.Errorf("create temp folder: %w", err))
	}

	env := m.taskEnv()
	for i, t := range m.pending {
		if err := m.stopped(ctx); err != nil {
			return false, m.fail(err)
		}
		if err := t.Prepare(ctx, env, m.checked); err != nil {
			m.notify(t, i, len(m.pending), "prepare failed")
			return false, m.fail(feederrors.NewExecutionError(t.ID(), "prepare", err))
		}
		m.notify(t, i, len(m.pending), "prepared")
	}

	m.setState(StatePrepared)
	m.log.WithFields(map[string]any{"tasks": len(m.pending)}).Info("updates prepared")
	return true, nil
}

// Apply executes the pending tasks. Failed tasks are counted and skipped.
// When a task needs the application stopped, Apply starts the helper, hands
// it the transfer object and calls the exit function.
func (m *Manager) Apply(ctx context.Context, opts ApplyOptions) (bool, error) {
	j, err := m.begin()
	if err != nil {
		return false, err
	}
	defer m.end(j)

	handedOff, err := m.apply(ctx, opts)
	if err != nil {
		return false, err
	}
	if handedOff {
		m.log.Info("helper started, exiting for cold update")
		m.exit(0)
	}
	return true, nil
}

func (m *Manager) apply(ctx context.Context, opts ApplyOptions) (bool, error) {
	m.setLastError(nil)
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case StateChecked, StatePrepared:
	default:
		return false, m.fail(fmt.Errorf("apply in state %s: %w", m.State(), ErrInvalidState))
	}

	if err := m.chdir(m.cfg.AppDir()); err != nil {
		m.log.WithFields(map[string]any{"dir": m.cfg.AppDir()}).Warn("could not switch to application directory")
	}
	if err := m.ensureBackupFolder(); err != nil {
		return false, m.fail(err)
	}

	m.setState(StateRollbackRequired)

	env := m.taskEnv()
	obj := transfer.New()
	report := Report{}
	var failures []error
	for i, t := range m.pending {
		if err := m.stopped(ctx); err != nil {
			m.report = report
			return false, m.fail(err)
		}
		status, err := t.Execute(ctx, env, false)
		if err == nil && status == task.StatusFailed {
			err = errors.New("task reported failure")
		}
		m.notify(t, i, len(m.pending), "applied: "+status.String())
		if err != nil {
			report.Failed++
			failures = append(failures, feederrors.NewExecutionError(t.ID(), "execute", err))
			m.log.WithFields(map[string]any{"task": t.ID()}).Error(err, "task failed")
			continue
		}
		report.Executed++
		report.Privileged = report.Privileged || t.MustRunPrivileged(env)
		for key, value := range t.ColdUpdates() {
			if _, replaced := obj.SetColdUpdate(key, value); replaced {
				m.log.WithFields(map[string]any{"key": key, "task": t.ID()}).Debug("cold update replaced an earlier entry")
			}
		}
	}
	report.ColdUpdates = len(obj.ColdUpdates)
	m.report = report
	if len(failures) > 0 {
		m.setLastError(errors.Join(failures...))
	}

	if len(obj.ColdUpdates) > 0 {
		if err := m.startHelper(ctx, obj, opts, report.Privileged); err != nil {
			return false, m.fail(err)
		}
		return true, nil
	}

	m.pending = nil
	m.setState(StateAppliedSuccessfully)
	m.log.WithFields(map[string]any{
		"executed": report.Executed,
		"failed":   report.Failed,
	}).Info("updates applied")
	return false, nil
}

// notify reports the outcome of the i-th of n tasks.
func (m *Manager) notify(t task.Task, i, n int, msg string) {
	if m.progress == nil || n <= 0 {
		return
	}
	m.progress(task.Progress{TaskID: t.ID(), Message: msg, Percentage: (i + 1) * 100 / n})
}

// RollbackUpdates rolls back every pending task and resets the cycle.
// Rollback failures are logged and recorded in LastError; they do not stop
// the remaining rollbacks and are not returned. The only error returned is
// ErrBusy.
func (m *Manager) RollbackUpdates(ctx context.Context) error {
	j, err := m.begin()
	if err != nil {
		return err
	}
	defer m.end(j)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLastError(nil)
	env := m.taskEnv()
	var errs []error
	for _, t := range m.pending {
		if err := t.Rollback(ctx, env); err != nil {
			errs = append(errs, feederrors.NewExecutionError(t.ID(), "rollback", err))
			m.log.WithFields(map[string]any{"task": t.ID()}).Warn("rollback failed")
		}
	}
	if len(errs) > 0 {
		m.setLastError(errors.Join(errs...))
	}
	m.setState(StateNotChecked)
	return nil
}

// CleanUp aborts any running operation, forgets the pending tasks and
// removes the temp and backup folders.
func (m *Manager) CleanUp() {
	m.Abort(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil
	m.checked = nil
	m.setState(StateNotChecked)
	if err := m.fs.RemoveAll(m.cfg.TempFolder); err != nil {
		m.log.Warn("could not remove temp folder")
	}
	if err := m.fs.RemoveAll(m.backupFolder); err != nil {
		m.log.Warn("could not remove backup folder")
	}
}

// CheckAsync runs Check in the background and reports the number of
// pending tasks, or -1 on failure, to cb.
func (m *Manager) CheckAsync(ctx context.Context, src source.Source, cb func(count int, err error)) error {
	j, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		count, err := m.runGuarded(func() (int, error) {
			if _, err := m.check(ctx, src); err != nil {
				return -1, err
			}
			return m.UpdatesAvailable(), nil
		})
		m.end(j)
		if cb != nil {
			cb(count, err)
		}
	}()
	return nil
}

// PrepareAsync runs Prepare in the background and reports the result to cb.
func (m *Manager) PrepareAsync(ctx context.Context, cb func(ok bool, err error)) error {
	j, err := m.begin()
	if err != nil {
		return err
	}
	go func() {
		n, err := m.runGuarded(func() (int, error) {
			ok, err := m.prepare(ctx)
			if !ok {
				return 0, err
			}
			return 1, nil
		})
		m.end(j)
		if cb != nil {
			cb(n == 1, err)
		}
	}()
	return nil
}

// runGuarded turns a panic in fn into an error so async callers always get
// their callback.
func (m *Manager) runGuarded(fn func() (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = -1
			err = m.fail(fmt.Errorf("update operation panicked: %v", r))
		}
	}()
	return fn()
}
