package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/BTreeMap/ClinicIntake/internal/flow"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newFillCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fill",
		Short: "Fill in the questionnaire",
		Long: `Walk through the questionnaire one screen at a time.

Progress is saved after every screen. Choose "Save and quit" or press
ctrl+c to stop; running fill again resumes with your saved answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runFill(ctx context.Context, opts *RootOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	local, err := openLocalState(opts.StateDir)
	if err != nil {
		return err
	}
	defer local.Close()

	w, err := newWizard(local.storage, opts.Server)
	if err != nil {
		return err
	}
	if w.PersistenceDegraded() {
		fmt.Fprintln(out, errorStyle.Render("Your progress cannot be saved on this device. Finish in one sitting."))
	}
	return driveWizard(ctx, w, out, runStepForm)
}

// formRunner shows a step and returns the edited input. It is swapped out in tests.
type formRunner func(step flow.Step, in *stepInput, canGoBack bool) error

func runStepForm(_ flow.Step, in *stepInput, canGoBack bool) error {
	return in.Form(canGoBack).Run()
}

// driveWizard loops until the completion screen, a quit action, or an abort.
func driveWizard(ctx context.Context, w *flow.Wizard, out io.Writer, run formRunner) error {
	for {
		step, err := w.Current()
		if errors.Is(err, flow.ErrStepNotFound) {
			// The answer that put us here no longer applies; step back to a screen that does.
			slog.Debug("driveWizard: current step vanished, stepping back", "history", w.State().History)
			if len(w.State().History) <= 1 {
				return err
			}
			if err := w.Previous(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		pos, total := w.Progress()
		fmt.Fprintln(out, header(step, pos, total))

		if step.Terminal {
			fmt.Fprintln(out, noticeStyle.Render("Thank you. The clinic will contact you to confirm your appointment."))
			if id := w.SubmissionID(); id != "" {
				fmt.Fprintln(out, progressStyle.Render("Reference: "+id))
			}
			return nil
		}

		in := newStepInput(step, w.Answers())
		canGoBack := len(w.State().History) > 1
		if err := run(step, in, canGoBack); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				w.Update(in.Partial())
				fmt.Fprintln(out, progressStyle.Render("Progress saved."))
				return nil
			}
			return wrapExitError(ExitFailure, "form failed", err)
		}
		w.Update(in.Partial())

		if err := applyAction(ctx, w, in.action); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(out, progressStyle.Render("Progress saved."))
				return nil
			}
			fmt.Fprintln(out, errorStyle.Render(userMessage(err)))
			continue
		}
		if in.action == ActionResend {
			fmt.Fprintln(out, noticeStyle.Render("A new code is on its way."))
		}
	}
}

var errQuit = errors.New("quit")

func applyAction(ctx context.Context, w *flow.Wizard, action Action) error {
	switch action {
	case ActionNext:
		return w.Next(ctx)
	case ActionBack:
		return w.Previous()
	case ActionResend:
		return w.ResendCode(ctx)
	case ActionReset:
		return w.Reset()
	case ActionQuit:
		return errQuit
	}
	return fmt.Errorf("unknown action %q", action)
}
