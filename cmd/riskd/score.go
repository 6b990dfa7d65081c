package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"riskd/internal/dispatch"
	"riskd/internal/reqctx"
	"riskd/internal/scorer"
)

// newScoreCmd scores one JSON document from a file or stdin without starting
// the HTTP server, using the same scoring path as the server.
func newScoreCmd(f *rootFlags) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:     "score",
		Short:   "Score one JSON payload and print the result",
		Example: "  riskd score -f patient.json\n  echo '{\"age\":63,\"sex\":1}' | riskd score",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				fh, err := os.Open(input)
				if err != nil {
					return err
				}
				defer fh.Close()
				r = fh
			}
			dec := json.NewDecoder(r)
			dec.UseNumber()
			var raw any
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}

			s, err := buildScorer(cfg, logger)
			if err != nil {
				return err
			}
			rc := reqctx.New("")
			ctx := logger.With().Str("request_id", rc.ID).Logger().WithContext(reqctx.WithContext(cmd.Context(), rc))
			res, err := dispatch.New(s).Handle(ctx, raw)
			if err != nil {
				return fmt.Errorf("%s: %w", scorer.KindOf(err), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "Payload file; - reads stdin")
	return cmd
}
