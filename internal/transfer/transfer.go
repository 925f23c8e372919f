// Package transfer defines the object the host hands to the cold-update
// helper.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
)

// Environment entries the host adds next to the task cold updates.
const (
	EnvAppPath             = "ENV:AppPath"
	EnvWorkingDirectory    = "ENV:WorkingDirectory"
	EnvTempFolder          = "ENV:TempFolder"
	EnvBackupFolder        = "ENV:BackupFolder"
	EnvRelaunchApplication = "ENV:RelaunchApplication"
)

// Config is the snapshot of host settings the helper needs.
type Config struct {
	UpdateProcessName    string `json:"updateProcessName"`
	UpdateExecutableName string `json:"updateExecutableName"`
	TempFolder           string `json:"tempFolder"`
	BackupFolder         string `json:"backupFolder"`
	LogLevel             string `json:"logLevel,omitempty"`
}

// Object is the transfer object. Host and helper ship together, so the
// encoding carries no version negotiation.
type Object struct {
	ID               string            `json:"id"`
	Config           Config            `json:"config"`
	Tasks            []task.Envelope   `json:"tasks"`
	Log              []json.RawMessage `json:"log,omitempty"`
	AppPath          string            `json:"appPath"`
	WorkingDirectory string            `json:"workingDirectory"`
	Relaunch         bool              `json:"relaunch"`
	HostPID          int               `json:"hostPid"`
	ColdUpdates      map[string]any    `json:"coldUpdates,omitempty"`
}

// New returns an empty object with a fresh id.
func New() *Object {
	return &Object{ID: uuid.NewString(), ColdUpdates: make(map[string]any)}
}

// SetColdUpdate records a cold update. A later write to the same key
// replaces the earlier one; the previous value is returned.
func (o *Object) SetColdUpdate(key string, value any) (previous any, replaced bool) {
	if o.ColdUpdates == nil {
		o.ColdUpdates = make(map[string]any)
	}
	previous, replaced = o.ColdUpdates[key]
	o.ColdUpdates[key] = value
	return previous, replaced
}

// AddEnvironment stores the ENV entries derived from the host layout.
func (o *Object) AddEnvironment() {
	o.SetColdUpdate(EnvAppPath, o.AppPath)
	o.SetColdUpdate(EnvWorkingDirectory, o.WorkingDirectory)
	o.SetColdUpdate(EnvTempFolder, o.Config.TempFolder)
	o.SetColdUpdate(EnvBackupFolder, o.Config.BackupFolder)
	o.SetColdUpdate(EnvRelaunchApplication, strconv.FormatBool(o.Relaunch))
}

// Env returns an ENV entry as a string.
func (o *Object) Env(key string) string {
	v, ok := o.ColdUpdates[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// TaskKeys lists the cold update keys that are not ENV entries, sorted.
func (o *Object) TaskKeys() []string {
	keys := make([]string, 0, len(o.ColdUpdates))
	for key := range o.ColdUpdates {
		switch key {
		case EnvAppPath, EnvWorkingDirectory, EnvTempFolder, EnvBackupFolder, EnvRelaunchApplication:
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Marshal returns the encoded object.
func (o *Object) Marshal() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode transfer object: %w", err)
	}
	return data, nil
}

// Decode reads one object from r.
func Decode(r io.Reader) (*Object, error) {
	var o Object
	if err := json.NewDecoder(r).Decode(&o); err != nil {
		return nil, fmt.Errorf("decode transfer object: %w", err)
	}
	if o.ID == "" {
		return nil, fmt.Errorf("decode transfer object: missing id")
	}
	return &o, nil
}
