package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type logEntry map[string]any

func TestLoggerInfoWithFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", HumanReadable: false, Writer: buf})
	require.NoError(t, err)

	log = log.WithFields(map[string]any{"task": "bin/app", "phase": "prepare"})
	log.Info("staging payload")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "staging payload", entry["message"])
	require.Equal(t, "bin/app", entry["task"])
	require.Equal(t, "prepare", entry["phase"])
	require.Equal(t, "info", entry["level"])
}

func TestLoggerDebugRespectsLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", HumanReadable: false, Writer: buf})
	require.NoError(t, err)

	log.Debug("this should not appear")
	require.Equal(t, "", strings.TrimSpace(buf.String()))
}

func TestLoggerErrorIncludesContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "debug", HumanReadable: false, Writer: buf})
	require.NoError(t, err)

	log = log.WithFields(map[string]any{"task": "bin/app"})
	log.Error(errors.New("boom"), "failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "failed", entry["message"])
	require.Equal(t, "bin/app", entry["task"])
	require.Equal(t, "boom", entry["error"])
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var log *Logger
	require.NotPanics(t, func() {
		log.Info("ignored")
		log.Error(errors.New("x"), "ignored")
		require.Nil(t, log.WithFields(map[string]any{"a": 1}))
		require.Nil(t, log.Journal())
	})
}

func TestJournalCapturesEntries(t *testing.T) {
	t.Parallel()

	journal := NewJournal(0)
	log, err := New(Options{Level: "info", Writer: &bytes.Buffer{}, Journal: journal})
	require.NoError(t, err)

	log.WithFields(map[string]any{"task": "a"}).Info("first")
	log.Warn("second")

	entries := journal.Entries()
	require.Len(t, entries, 2)

	var first logEntry
	require.NoError(t, json.Unmarshal(entries[0], &first))
	require.Equal(t, "first", first["message"])
	require.Equal(t, "a", first["task"])
	require.Same(t, journal, log.Journal())
}

func TestJournalDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	journal := NewJournal(2)
	journal.Append([]json.RawMessage{
		json.RawMessage(`{"n":1}`),
		json.RawMessage(`{"n":2}`),
		nil,
		json.RawMessage(`{"n":3}`),
	})

	entries := journal.Entries()
	require.Len(t, entries, 2)
	require.JSONEq(t, `{"n":2}`, string(entries[0]))
	require.JSONEq(t, `{"n":3}`, string(entries[1]))

	var out bytes.Buffer
	require.NoError(t, journal.Replay(&out))
	require.Equal(t, "{\"n\":2}\n{\"n\":3}\n", out.String())
}
