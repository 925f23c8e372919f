package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/feedupdate/internal/coldupdate"
	"github.com/alexisbeaulieu97/feedupdate/internal/ipc"
	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/transfer"
)

type helperOptions struct {
	Channel     string
	Log         bool
	ShowConsole bool
}

var (
	receive   = ipc.Receive
	newRunner = coldupdate.NewRunner
)

func newRootCmd() *cobra.Command {
	opts := helperOptions{}

	cmd := &cobra.Command{
		Use:           "feedupdate-helper",
		Short:         "Completes an update after the application has exited",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Channel == "" {
				return fmt.Errorf("%s is required", ipc.ChannelFlag)
			}
			return runHelper(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.Channel, "channel", "", "Name of the channel to read the transfer object from")
	cmd.Flags().BoolVar(&opts.Log, "log", false, "Write a log file into the temp folder")
	cmd.Flags().BoolVar(&opts.ShowConsole, "show-console", false, "Log to the console")

	return cmd
}

func runHelper(ctx context.Context, opts helperOptions, console io.Writer) error {
	recvCtx, cancel := context.WithTimeout(ctx, ipc.DefaultConnectTimeout)
	payload, err := receive(recvCtx, opts.Channel)
	cancel()
	if err != nil {
		return err
	}
	obj, err := transfer.Decode(bytes.NewReader(payload))
	if err != nil {
		return err
	}

	log, closeLog, err := openLog(obj, opts, console)
	if err != nil {
		return err
	}
	defer closeLog()

	log.WithFields(map[string]any{
		"transfer": obj.ID,
		"hostPid":  obj.HostPID,
		"files":    obj.TaskKeys(),
	}).Info("transfer object received")
	res, err := newRunner(log).Run(ctx, obj)
	log.WithFields(map[string]any{
		"executed":   res.Executed,
		"rolledBack": res.RolledBack,
		"relaunched": res.Relaunched,
	}).Info("helper finished")
	return err
}

// openLog builds the helper logger. The host's journal is replayed first so
// one file tells the whole story of the update.
func openLog(obj *transfer.Object, opts helperOptions, console io.Writer) (*logger.Logger, func(), error) {
	var writers []io.Writer
	closeFn := func() {}

	if opts.Log {
		name := obj.Config.UpdateProcessName
		if name == "" {
			name = "feedupdate"
		}
		path := filepath.Join(obj.Config.TempFolder, name+".log")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFn = func() { _ = f.Close() }

		journal := logger.NewJournal(len(obj.Log))
		journal.Append(obj.Log)
		if err := journal.Replay(f); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("replay host log: %w", err)
		}
		writers = append(writers, f)
	}
	if opts.ShowConsole {
		writers = append(writers, console)
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	log, err := logger.New(logger.Options{Level: obj.Config.LogLevel, Writer: w})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return log, closeFn, nil
}
