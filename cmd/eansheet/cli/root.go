// Package cli implements the eansheet command line.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eansheet/eansheet/internal/generator"
)

// ErrReported marks failures whose message was already printed for the user.
var ErrReported = errors.New("cli: failure reported")

// Options carries the process streams. Zero values fall back to the os streams.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// SelectPreset replaces the interactive preset prompt.
	SelectPreset func(current generator.Preset) (generator.Preset, error)
}

func (o *Options) withDefaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.SelectPreset == nil {
		o.SelectPreset = promptPreset
	}
}

// NewRootCommand builds the eansheet command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts.withDefaults()
	root := &cobra.Command{
		Use:   "eansheet",
		Short: "Printable EAN barcode sheets",
		Long: `eansheet turns lists of EAN codes into printable PDF barcode sheets
rendered by a remote barcode service. It serves the web form, drives the
same flow from a terminal, and keeps the service warm.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	root.AddCommand(
		newServeCommand(),
		newGenerateCommand(&opts),
		newNormalizeCommand(&opts),
		newPingCommand(&opts),
		newWarmupCommand(&opts),
	)
	return root
}
