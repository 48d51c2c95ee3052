package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/woxQAQ/wasm-guest-fixture/internal/fixture"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
)

// inspection is what inspect prints for one fixture.
type inspection struct {
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Toolchain string          `json:"toolchain"`
	Manifest  string          `json:"manifest"`
	Declared  []string        `json:"declared_exports"`
	Budget    string          `json:"budget,omitempty"`
	Module    wasm.ModuleInfo `json:"module"`
}

func inspect(f *fixture.Fixture) inspection {
	in := inspection{
		Name:      f.Name(),
		Version:   f.Version(),
		Toolchain: f.Toolchain(),
		Manifest:  f.Manifest.Path(),
		Declared:  f.Exports(),
		Module:    f.Compiled.Inspect(),
	}
	if b := f.Budget(); b > 0 {
		in.Budget = b.String()
	}
	return in
}

func newInspectCommand(opts *options) *cobra.Command {
	var asJSON, all bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a fixture's manifest and module surface",
		Long: `Print a fixture's manifest data and the functions its compiled module
imports and exports, with their Wasm signatures.`,
		Example: `  fixturectl inspect
  fixturectl inspect --all --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			var fixtures []*fixture.Fixture
			if all {
				fixtures = s.harness.Manager().Registry().List()
			} else {
				f, err := s.harness.Fixture(s.cfg.Fixture)
				if err != nil {
					return err
				}
				fixtures = append(fixtures, f)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				result := make([]inspection, len(fixtures))
				for i, f := range fixtures {
					result[i] = inspect(f)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			for _, f := range fixtures {
				writeInspection(out, inspect(f))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Inspect every loaded fixture")
	return cmd
}

func writeInspection(w io.Writer, in inspection) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s %s (%s)", in.Name, in.Version, in.Toolchain)))
	fmt.Fprintln(w, dimStyle.Render(in.Manifest))
	fmt.Fprintf(w, "module %s, %d bytes, memories: %s\n",
		in.Module.Name, in.Module.Size, strings.Join(in.Module.Memories, ", "))
	if in.Budget != "" {
		fmt.Fprintf(w, "budget %s\n", in.Budget)
	}

	rows := make([][]string, 0, len(in.Module.Imports)+len(in.Module.Exports))
	for _, fn := range in.Module.Imports {
		rows = append(rows, []string{"import", fn.Module + "." + fn.Name, fn.Signature})
	}
	for _, fn := range in.Module.Exports {
		rows = append(rows, []string{"export", fn.Name, fn.Signature})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Headers("KIND", "NAME", "SIGNATURE").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}
