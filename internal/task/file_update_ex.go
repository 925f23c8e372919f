package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/source"
)

// FileUpdateExTask is a FileUpdateTask that knows its position in the batch
// and reports batch progress around Prepare and Execute.
type FileUpdateExTask struct {
	FileUpdateTask

	Index int `json:"index"`
	Count int `json:"count"`
}

func (t *FileUpdateExTask) Kind() string { return KindFileUpdateEx }

func (t *FileUpdateExTask) Configure(attrs map[string]string) error {
	if err := t.FileUpdateTask.Configure(attrs); err != nil {
		return err
	}
	var err error
	if t.Index, err = strconv.Atoi(strings.TrimSpace(attrs["index"])); err != nil {
		return fmt.Errorf("invalid index %q", attrs["index"])
	}
	if t.Count, err = strconv.Atoi(strings.TrimSpace(attrs["count"])); err != nil {
		return fmt.Errorf("invalid count %q", attrs["count"])
	}
	return nil
}

// Percentage is (Index+1)/Count*100 in integer arithmetic, so it only
// reaches 100 on the last task of a batch.
func (t *FileUpdateExTask) Percentage() int {
	if t.Count <= 0 {
		return 0
	}
	return (t.Index + 1) / t.Count * 100
}

func (t *FileUpdateExTask) Prepare(ctx context.Context, env Env, src source.Source) error {
	env.report(Progress{TaskID: t.ID(), Message: "Preparing", Percentage: t.Percentage()})
	return t.FileUpdateTask.Prepare(ctx, env, src)
}

func (t *FileUpdateExTask) Execute(ctx context.Context, env Env, coldRun bool) (Status, error) {
	status, err := t.FileUpdateTask.Execute(ctx, env, coldRun)
	env.report(Progress{
		TaskID:     t.ID(),
		Message:    "Applied with result " + status.String(),
		Percentage: t.Percentage(),
	})
	return status, err
}
