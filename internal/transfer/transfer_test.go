package transfer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
)

func TestObjectEnvironment(t *testing.T) {
	t.Parallel()

	o := New()
	require.NotEmpty(t, o.ID)
	o.AppPath = "/opt/app/app"
	o.WorkingDirectory = "/opt/app"
	o.Relaunch = true
	o.Config = Config{TempFolder: "/tmp/x", BackupFolder: "/opt/app/Backup"}
	o.SetColdUpdate("/opt/app/app", "/tmp/x/staged")
	o.AddEnvironment()

	require.Equal(t, "/opt/app/app", o.Env(EnvAppPath))
	require.Equal(t, "/opt/app", o.Env(EnvWorkingDirectory))
	require.Equal(t, "/tmp/x", o.Env(EnvTempFolder))
	require.Equal(t, "/opt/app/Backup", o.Env(EnvBackupFolder))
	require.Equal(t, "true", o.Env(EnvRelaunchApplication))
	require.Equal(t, []string{"/opt/app/app"}, o.TaskKeys())
	require.Empty(t, o.Env("missing"))
}

func TestSetColdUpdateLastWriteWins(t *testing.T) {
	t.Parallel()

	o := &Object{}
	_, replaced := o.SetColdUpdate("k", "first")
	require.False(t, replaced)

	prev, replaced := o.SetColdUpdate("k", "second")
	require.True(t, replaced)
	require.Equal(t, "first", prev)
	require.Equal(t, "second", o.Env("k"))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	reg := task.DefaultRegistry()
	fut := task.NewFileUpdateTask("app.exe", "", "", false)
	fut.TempFile = "/tmp/staged"
	envelopes, err := reg.Marshal([]task.Task{fut})
	require.NoError(t, err)

	o := New()
	o.Tasks = envelopes
	o.HostPID = 4242
	o.Log = []json.RawMessage{json.RawMessage(`{"level":"info","message":"hello"}`)}
	o.SetColdUpdate("app.exe", "/tmp/staged")

	data, err := o.Marshal()
	require.NoError(t, err)

	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
	require.Equal(t, 4242, got.HostPID)
	require.Len(t, got.Log, 1)
	require.JSONEq(t, `{"level":"info","message":"hello"}`, string(got.Log[0]))

	tasks, err := reg.Unmarshal(got.Tasks)
	require.NoError(t, err)
	require.Equal(t, "/tmp/staged", tasks[0].(*task.FileUpdateTask).TempFile)

	_, err = Decode(strings.NewReader(`{}`))
	require.Error(t, err)
	_, err = Decode(strings.NewReader(`not json`))
	require.Error(t, err)
}
