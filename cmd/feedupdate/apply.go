package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/feedupdate/internal/manager"
	"github.com/alexisbeaulieu97/feedupdate/internal/task"
	"github.com/alexisbeaulieu97/feedupdate/internal/tui"
)

type applyOptions struct {
	Relaunch       bool
	HelperLogging  bool
	ShowConsole    bool
	NonInteractive bool
}

var osExit = os.Exit

func newApplyCmd(root *rootFlags) *cobra.Command {
	opts := applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Download and apply the updates the feed selects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				opts.NonInteractive = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runApply(ctx, root, opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Relaunch, "relaunch", false, "Relaunch the application after a cold update")
	cmd.Flags().BoolVar(&opts.HelperLogging, "helper-log", false, "Let the helper write a log file")
	cmd.Flags().BoolVar(&opts.ShowConsole, "show-console", false, "Show the helper console window")
	cmd.Flags().BoolVar(&opts.NonInteractive, "no-tui", false, "Print a plain summary instead of the progress view")

	return cmd
}

func runApply(ctx context.Context, root *rootFlags, opts applyOptions, cmd *cobra.Command) error {
	a, err := openApp(root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	var mgr *manager.Manager
	view := newProgressView(cmd.OutOrStdout(), !opts.NonInteractive, func() { mgr.Abort(false) })
	mgr, err = a.newManager(
		manager.WithProgress(view.progress),
		manager.WithExit(func(code int) {
			view.send(doneMsg(mgr.LastReport(), nil))
			view.stop()
			a.Close()
			osExit(code)
		}),
	)
	if err != nil {
		return err
	}

	found, err := mgr.Check(ctx, nil)
	if err != nil {
		return err
	}
	view.start(tui.NewModel(a.cfg.UpdateProcessName, taskIDs(mgr.Pending()), opts.NonInteractive))
	if !found {
		view.send(tui.DoneMsg{NoUpdates: true})
		view.stop()
		return nil
	}

	view.send(tui.PhaseMsg{Phase: "prepare"})
	if _, err := mgr.Prepare(ctx); err != nil {
		view.send(tui.DoneMsg{Err: err})
		view.stop()
		mgr.CleanUp()
		return err
	}

	view.send(tui.PhaseMsg{Phase: "apply"})
	_, err = mgr.Apply(ctx, manager.ApplyOptions{
		Relaunch:      opts.Relaunch,
		HelperLogging: opts.HelperLogging,
		ShowConsole:   opts.ShowConsole,
	})
	view.send(doneMsg(mgr.LastReport(), err))
	view.stop()
	if err != nil {
		if mgr.State() == manager.StateRollbackRequired {
			if rbErr := mgr.RollbackUpdates(context.WithoutCancel(ctx)); rbErr != nil {
				a.log.Error(rbErr, "rollback not started")
			} else if rbErr := mgr.LastError(); rbErr != nil {
				a.log.Error(rbErr, "rollback incomplete")
			}
		}
		return err
	}
	mgr.CleanUp()
	return nil
}

func doneMsg(r manager.Report, err error) tui.DoneMsg {
	return tui.DoneMsg{
		Executed:    r.Executed,
		Failed:      r.Failed,
		ColdUpdates: r.ColdUpdates,
		Err:         err,
	}
}

func taskIDs(tasks []task.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID()
	}
	return ids
}
