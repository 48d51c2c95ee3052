package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

// errChecksFailed makes the process exit non-zero after a report that
// already explains the failure.
var errChecksFailed = errors.New("checks failed")

func newCheckCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the conformance checks against a fixture",
		Long: `Run every property and scenario against a fixture: fibonacci values, byte
access, allocator reuse, lower-casing of BUFFER, the FatPtr codec, budget
enforcement on endless_loop, and the panic message sent through env.sig.

Checks that need an optional export the fixture lacks are skipped. The command
exits non-zero when any check fails.`,
		Example: `  fixturectl check
  fixturectl check --fixture go-reference --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			summary, err := s.harness.Check(cmd.Context(), s.cfg.Fixture)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderSummary(summary))
			}

			if !summary.OK() {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// renderSummary draws the results as a table followed by the totals.
func renderSummary(summary *report.Summary) string {
	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		detail := r.Detail
		if len(r.Signals) > 0 {
			detail = strings.TrimSpace(strings.Join(append([]string{detail}, r.Signals...), "\n"))
		}
		rows = append(rows, []string{
			r.Name,
			statusStyle(r.Status).Render(string(r.Status)),
			r.Duration.Round(time.Microsecond).String(),
			detail,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Headers("CHECK", "STATUS", "TIME", "DETAIL").
		Rows(rows...)

	totals := fmt.Sprintf("%s  %s  %s",
		successStyle.Render(fmt.Sprintf("%d passed", summary.Passed)),
		errorStyle.Render(fmt.Sprintf("%d failed", summary.Failed)),
		warningStyle.Render(fmt.Sprintf("%d skipped", summary.Skipped)),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("Fixture "+summary.Fixture),
		t.String(),
		totals,
	)
}

// writeSignals prints each signal's text, one block per signal.
func writeSignals(w io.Writer, texts []string) {
	for _, text := range texts {
		fmt.Fprintln(w, dimStyle.Render("sig:"), strings.TrimRight(text, "\n"))
	}
}
