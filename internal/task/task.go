// Package task defines the unit of change applied by an update cycle and the
// built-in task kinds.
package task

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
)

// Status is the execution state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusPrepared
	StatusSuccessful
	StatusRequiresAppRestart
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:            "pending",
	StatusPrepared:           "prepared",
	StatusSuccessful:         "successful",
	StatusRequiresAppRestart: "requires_app_restart",
	StatusFailed:             "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown task status %q", text)
}

// Progress is a progress notification emitted by a task.
type Progress struct {
	TaskID     string
	Message    string
	Percentage int
}

// Env carries everything a task needs from the running update cycle.
type Env struct {
	AppDir       string
	TempFolder   string
	BackupFolder string
	Logger       *logger.Logger
	Progress     func(Progress)
	Registry     platform.RegistryStore
}

func (e Env) report(p Progress) {
	if e.Progress != nil {
		e.Progress(p)
	}
}

func (e Env) registry() platform.RegistryStore {
	if e.Registry != nil {
		return e.Registry
	}
	return platform.NewRegistryStore()
}

// Targeted is implemented by tasks that act on a local file. Conditions
// without their own path inspect that file.
type Targeted interface {
	TargetPath() string
}

// ConditionEnv returns the environment t's conditions are evaluated in.
func (e Env) ConditionEnv(t Task) condition.Env {
	env := condition.Env{BaseDir: e.AppDir}
	if target, ok := t.(Targeted); ok {
		env.LocalPath = target.TargetPath()
	}
	return env
}

// Task is a unit of change. The lifecycle is Prepare, then Execute, then
// optionally Rollback.
type Task interface {
	ID() string
	Kind() string
	Description() string
	SetDescription(string)
	Conditions() condition.Condition
	SetConditions(condition.Condition)
	Status() Status

	// Configure applies the attributes of the task's feed element.
	Configure(attrs map[string]string) error
	// Prepare stages the payload, for example by downloading it.
	Prepare(ctx context.Context, env Env, src source.Source) error
	// Execute applies the change directly, or records it for the helper and
	// returns StatusRequiresAppRestart. coldRun is true inside the helper.
	Execute(ctx context.Context, env Env, coldRun bool) (Status, error)
	// Rollback restores the previous state on a best-effort basis.
	Rollback(ctx context.Context, env Env) error
	MustRunPrivileged(env Env) bool
	ColdUpdates() iter.Seq2[string, any]
}

// Checksummed is implemented by tasks carrying an integrity checksum.
type Checksummed interface {
	Checksum() (kind, value string)
}

// ChecksumExempt is implemented by tasks that never need a checksum.
type ChecksumExempt interface {
	ChecksumExempt() bool
}

// SupportedChecksum reports whether kind is a checksum algorithm tasks verify.
func SupportedChecksum(kind string) bool {
	return strings.EqualFold(kind, "sha256")
}

// HasRequiredChecksum reports whether t satisfies the checksum policy: it is
// exempt, or it carries a non-empty checksum of a supported kind.
func HasRequiredChecksum(t Task) bool {
	if exempt, ok := t.(ChecksumExempt); ok && exempt.ChecksumExempt() {
		return true
	}
	sum, ok := t.(Checksummed)
	if !ok {
		return false
	}
	kind, value := sum.Checksum()
	return SupportedChecksum(kind) && strings.TrimSpace(value) != ""
}

// Base holds the state shared by every task kind.
type Base struct {
	TaskID     string `json:"id"`
	Desc       string `json:"description,omitempty"`
	ExecStatus Status `json:"status"`

	cond condition.Condition
}

func (b *Base) ID() string                          { return b.TaskID }
func (b *Base) Description() string                 { return b.Desc }
func (b *Base) SetDescription(d string)             { b.Desc = strings.TrimSpace(d) }
func (b *Base) Conditions() condition.Condition     { return b.cond }
func (b *Base) SetConditions(c condition.Condition) { b.cond = c }
func (b *Base) Status() Status                      { return b.ExecStatus }

func (b *Base) setStatus(s Status) Status {
	b.ExecStatus = s
	return s
}

func noColdUpdates(func(string, any) bool) {}
