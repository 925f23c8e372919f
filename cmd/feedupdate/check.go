package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/feedupdate/internal/task"
)

func newCheckCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Read the update feed and list the updates that apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runCheck(ctx, root, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runCheck(ctx context.Context, root *rootFlags, out, errOut io.Writer) error {
	a, err := openApp(root, errOut)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.newManager()
	if err != nil {
		return err
	}

	found, err := mgr.Check(ctx, nil)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(out, okStyle.Render("No updates available"))
		return nil
	}

	renderPending(out, mgr.Pending())
	return nil
}

func renderPending(out io.Writer, tasks []task.Task) {
	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%d update(s) available", len(tasks))))
	for _, t := range tasks {
		line := fmt.Sprintf("• %s %s", t.ID(), mutedStyle.Render("("+t.Kind()+")"))
		if d := t.Description(); d != "" {
			line += " " + d
		}
		fmt.Fprintln(out, itemStyle.Render(line))
	}
}
