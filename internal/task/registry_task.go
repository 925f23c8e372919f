package task

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/platform"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
)

// RegistryTask writes one registry value. It is always applied in place and
// never needs the helper.
type RegistryTask struct {
	Base

	KeyName   string             `json:"keyName"`
	KeyValue  string             `json:"keyValue"`
	ValueKind platform.ValueKind `json:"valueKind"`
	Value     string             `json:"value,omitempty"`

	Original *platform.RegistryValue `json:"original,omitempty"`
	Existed  bool                    `json:"existed,omitempty"`
}

func (t *RegistryTask) Kind() string { return KindRegistry }

func (t *RegistryTask) ChecksumExempt() bool { return true }

func (t *RegistryTask) Configure(attrs map[string]string) error {
	t.KeyName = strings.TrimSpace(attrs["keyName"])
	if t.KeyName == "" {
		return errors.New("keyName is required")
	}
	t.KeyValue = attrs["keyValue"]
	t.ValueKind = platform.ValueKind(strings.TrimSpace(attrs["valueKind"]))
	if t.ValueKind == "" {
		t.ValueKind = platform.KindString
	}
	t.Value = attrs["value"]
	if _, err := t.desired(); err != nil {
		return err
	}
	t.TaskID = t.KeyName + `\` + t.KeyValue
	return nil
}

func (t *RegistryTask) desired() (platform.RegistryValue, error) {
	v := platform.RegistryValue{Kind: t.ValueKind}
	switch t.ValueKind {
	case platform.KindString, platform.KindExpandString:
		v.String = t.Value
	case platform.KindDWord, platform.KindQWord:
		bits := 64
		if t.ValueKind == platform.KindDWord {
			bits = 32
		}
		raw := strings.TrimSpace(t.Value)
		if raw == "" {
			raw = "0"
		}
		n, err := strconv.ParseUint(raw, 0, bits)
		if err != nil {
			return v, fmt.Errorf("invalid %s value %q", t.ValueKind, t.Value)
		}
		v.Integer = n
	case platform.KindBinary:
		b, err := hex.DecodeString(strings.TrimSpace(t.Value))
		if err != nil {
			return v, fmt.Errorf("invalid binary value: %w", err)
		}
		v.Binary = b
	case platform.KindMultiString:
		if t.Value != "" {
			v.Strings = strings.Split(t.Value, "\n")
		}
	default:
		return v, fmt.Errorf("unknown value kind %q", t.ValueKind)
	}
	return v, nil
}

func (t *RegistryTask) Prepare(ctx context.Context, env Env, src source.Source) error {
	if _, err := t.desired(); err != nil {
		return err
	}
	t.setStatus(StatusPrepared)
	return nil
}

func (t *RegistryTask) Execute(ctx context.Context, env Env, coldRun bool) (Status, error) {
	if err := ctx.Err(); err != nil {
		return t.setStatus(StatusFailed), err
	}
	value, err := t.desired()
	if err != nil {
		return t.setStatus(StatusFailed), err
	}

	store := env.registry()
	original, existed, err := store.Get(t.KeyName, t.KeyValue)
	if err != nil {
		return t.setStatus(StatusFailed), fmt.Errorf("read %s: %w", t.ID(), err)
	}
	t.Existed = existed
	if existed {
		t.Original = &original
	}

	if err := store.Set(t.KeyName, t.KeyValue, value); err != nil {
		return t.setStatus(StatusFailed), fmt.Errorf("write %s: %w", t.ID(), err)
	}
	return t.setStatus(StatusSuccessful), nil
}

func (t *RegistryTask) Rollback(ctx context.Context, env Env) error {
	if t.ExecStatus != StatusSuccessful {
		return nil
	}
	store := env.registry()
	if t.Existed && t.Original != nil {
		return store.Set(t.KeyName, t.KeyValue, *t.Original)
	}
	return store.Delete(t.KeyName, t.KeyValue)
}

func (t *RegistryTask) MustRunPrivileged(Env) bool {
	return platform.IsMachineKey(t.KeyName)
}

func (t *RegistryTask) ColdUpdates() iter.Seq2[string, any] {
	return noColdUpdates
}
