package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eansheet/eansheet/internal/codes"
)

func newNormalizeCommand(opts *Options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Print codes one per line, the way they are sent to the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				normalized string
				err        error
			)
			if file != "" && file != "-" {
				f, openErr := os.Open(file)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				normalized, err = codes.Import(filepath.Base(file), f, codes.DefaultImportLimit)
			} else {
				var raw string
				raw, err = readLimited(opts.Stdin, codes.DefaultImportLimit)
				normalized = codes.Normalize(raw)
			}
			if err != nil {
				return reportFailure(opts, err)
			}
			if normalized != "" {
				_, _ = fmt.Fprintln(opts.Stdout, normalized)
			}
			_, _ = fmt.Fprintf(opts.Stderr, "%d codes\n", codes.Count(normalized))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read codes from a .csv or .txt file (- for stdin)")
	return cmd
}
