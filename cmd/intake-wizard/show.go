package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/BTreeMap/ClinicIntake/internal/flow"
	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print saved answers",
		Long: `Print the answers saved in the state directory.

Examples:
  intake-wizard show
  intake-wizard show --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := openLocalState(rootOpts.StateDir)
			if err != nil {
				return err
			}
			defer local.Close()
			answers := flow.NewAnswerStore(local.storage).Answers()
			return writeAnswers(cmd.OutOrStdout(), rootOpts.Format, answers)
		},
	}
}

func newResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard saved answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := openLocalState(rootOpts.StateDir)
			if err != nil {
				return err
			}
			defer local.Close()
			flow.NewAnswerStore(local.storage).Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Saved answers discarded.")
			return nil
		},
	}
}

// writeAnswers prints answers without the verification code.
func writeAnswers(w io.Writer, format string, answers models.Answers) error {
	answers = answers.Clone()
	delete(answers, models.KeyOTP)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(answers)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any(answers)); err != nil {
			return err
		}
		return enc.Close()
	}

	for _, f := range models.Fields {
		if _, ok := answers[f.Key]; !ok {
			continue
		}
		fmt.Fprintln(w, answers.Describe(f.Key))
		delete(answers, f.Key)
	}
	extra := make([]string, 0, len(answers))
	for k := range answers {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintln(w, answers.Describe(k))
	}
	return nil
}
