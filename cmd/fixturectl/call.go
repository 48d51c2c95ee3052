package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/wasm-guest-fixture/internal/harness"
)

func newCallCommand(opts *options) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "call <export> [args...]",
		Short: "Call one export on a fresh instance",
		Long: `Call one exported function on a fresh instance of a fixture and print its
results, the instance state afterwards, and any signals the guest sent.

Arguments are unsigned integers in Go syntax (decimal, 0x, 0o or 0b). With
--input, the text is written to BUFFER before the call and BUFFER is printed
after it.`,
		Example: `  fixturectl call fibonacci 20
  fixturectl call to_lower_case --input "HELLO, World!"
  fixturectl call buffer_byte 70000 --budget 100ms`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			req := harness.CallRequest{Export: args[0], Params: params}
			if cmd.Flags().Changed("input") {
				req.Input = &input
			}

			res, callErr := s.harness.Call(cmd.Context(), s.cfg.Fixture, req)
			if res == nil {
				return callErr
			}

			out := cmd.OutOrStdout()
			for i, v := range res.Results {
				fmt.Fprintf(out, "result[%d] = %d (%#x)\n", i, v, v)
			}
			if req.Input != nil && callErr == nil {
				fmt.Fprintf(out, "BUFFER = %q\n", res.Output)
			}
			texts := make([]string, len(res.Signals))
			for i, sig := range res.Signals {
				texts[i] = sig.Text
			}
			writeSignals(out, texts)
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("state %s after %s", res.State, res.Duration)))

			return callErr
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Text written to BUFFER before the call")
	return cmd
}

// parseParams converts export arguments to raw Wasm values.
func parseParams(args []string) ([]uint64, error) {
	params := make([]uint64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		params[i] = v
	}
	return params, nil
}
