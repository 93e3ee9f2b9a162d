package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/eansheet/eansheet/internal/app"
	"github.com/eansheet/eansheet/internal/codes"
	"github.com/eansheet/eansheet/internal/generator"
	"github.com/eansheet/eansheet/report"
)

type generateFlags struct {
	file        string
	preset      string
	out         string
	timeout     time.Duration
	interactive bool
	quiet       bool
}

func newGenerateCommand(opts *Options) *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   "generate [codes...]",
		Short: "Generate barcodes.pdf from EAN codes",
		Long: `Reads EAN codes from the arguments, a .csv/.txt file or stdin, sends them
to the barcode service and saves the returned sheet as barcodes.pdf.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts, flags, args)
		},
	}
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "read codes from a .csv or .txt file (- for stdin)")
	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "", "layout preset: 3, 4 or 6 per row (default from DEFAULT_PRESET)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", ".", "directory receiving barcodes.pdf")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "give up after this long, 0 waits indefinitely (default from GENERATE_TIMEOUT)")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "choose the preset from a menu")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "hide the progress spinner")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *Options, flags generateFlags, args []string) error {
	cfg, err := app.LoadClientConfig()
	if err != nil {
		return err
	}
	logger := app.NewLoggerTo(opts.Stderr, cfg)

	genCfg := cfg.Generator()
	if cmd.Flags().Changed("timeout") {
		genCfg.Timeout = flags.timeout
	}
	saver := generator.DirSaver{Dir: flags.out}
	ctrl := generator.NewController(genCfg, report.NewClient(cfg.BackendURL), saver,
		generator.WithLogger(logger),
		generator.WithNotifier(printNotifier{w: opts.Stdout}),
	)

	if err := loadCodes(ctrl, opts.Stdin, flags.file, args, cfg.MaxImportBytes); err != nil {
		return reportFailure(opts, err)
	}

	preset := genCfg.DefaultPreset
	if flags.preset != "" {
		preset = generator.Preset(flags.preset)
	}
	if flags.interactive {
		if preset, err = opts.SelectPreset(preset); err != nil {
			return err
		}
	}
	if err := ctrl.SetPreset(preset); err != nil {
		return reportFailure(opts, err)
	}

	stop := startSpinner(opts.Stderr, !flags.quiet)
	err = ctrl.Submit(cmd.Context())
	stop()
	if err != nil {
		return reportFailure(opts, err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "saved %s (%d codes, preset %s)\n",
		saver.Path(generator.FileName), codes.Count(ctrl.Snapshot().Codes), preset)
	return nil
}

// loadCodes fills the controller from a file, the arguments or stdin, in that order.
func loadCodes(ctrl *generator.Controller, stdin io.Reader, file string, args []string, limit int64) error {
	switch {
	case file != "" && file != "-":
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		return ctrl.Import(filepath.Base(file), f, limit)
	case file == "" && len(args) > 0:
		ctrl.SetCodes(strings.Join(args, "\n"))
		return nil
	default:
		raw, err := readLimited(stdin, limit)
		if err != nil {
			return err
		}
		ctrl.SetCodes(raw)
		return nil
	}
}

func readLimited(r io.Reader, limit int64) (string, error) {
	if limit <= 0 {
		limit = codes.DefaultImportLimit
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(raw)) > limit {
		return "", fmt.Errorf("%w: stdin exceeds %d bytes", codes.ErrFileTooLarge, limit)
	}
	return string(raw), nil
}

// reportFailure prints the user-facing message for err and marks it as handled.
func reportFailure(opts *Options, err error) error {
	_, _ = fmt.Fprintln(opts.Stderr, generator.Message(err))
	return fmt.Errorf("%w: %v", ErrReported, err)
}

type printNotifier struct {
	w io.Writer
}

func (n printNotifier) Notify(message string, _ time.Duration) {
	_, _ = fmt.Fprintln(n.w, message)
}

// startSpinner animates an indeterminate bar on w until the returned func is called.
func startSpinner(w io.Writer, enabled bool) func() {
	if !enabled {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Generating barcodes"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
		_ = bar.Finish()
	}
}

func promptPreset(current generator.Preset) (generator.Preset, error) {
	presets := generator.Presets()
	labels := make([]string, len(presets))
	cursor := 0
	for i, p := range presets {
		labels[i] = p.Label()
		if p == current {
			cursor = i
		}
	}
	prompt := promptui.Select{
		Label:     "Layout preset",
		Items:     labels,
		CursorPos: cursor,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("preset selection: %w", err)
	}
	return presets[idx], nil
}
