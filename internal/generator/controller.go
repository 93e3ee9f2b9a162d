package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eansheet/eansheet/internal/codes"
)

// Backend renders a barcode sheet for a request.
type Backend interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// Recorder observes finished submissions.
type Recorder interface {
	ObserveGenerate(outcome string, elapsed time.Duration)
}

// Controller is the view-model behind the form. All methods are safe for
// concurrent use; at most one Submit runs at a time.
type Controller struct {
	backend  Backend
	saver    Saver
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
	toast    *Toast

	mu      sync.Mutex
	codes   string
	preset  Preset
	theme   Theme
	loading bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for submission events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier forwards toasts to n in addition to the controller's own toast.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRecorder reports submission outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// NewController builds an idle controller with an empty buffer.
func NewController(cfg Config, backend Backend, saver Saver, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		backend: backend,
		saver:   saver,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:     cfg,
		toast:   &Toast{},
		preset:  cfg.DefaultPreset,
		theme:   cfg.DefaultTheme,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCodes replaces the buffer with the normalized form of raw.
func (c *Controller) SetCodes(raw string) {
	normalized := codes.Normalize(raw)
	c.mu.Lock()
	c.codes = normalized
	c.mu.Unlock()
}

// Import replaces the buffer with the codes read from an uploaded file.
func (c *Controller) Import(name string, r io.Reader, limit int64) error {
	normalized, err := codes.Import(name, r, limit)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.codes = normalized
	c.mu.Unlock()
	return nil
}

// Clear empties the buffer. It is refused while a request is outstanding.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}
	c.codes = ""
	return nil
}

// SetPreset selects the layout preset.
func (c *Controller) SetPreset(p Preset) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPreset, string(p))
	}
	c.mu.Lock()
	c.preset = p
	c.mu.Unlock()
	return nil
}

// ToggleTheme flips the theme and returns the new value.
func (c *Controller) ToggleTheme() Theme {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theme = c.theme.Toggle()
	return c.theme
}

// Snapshot returns the current state of the form.
func (c *Controller) Snapshot() State {
	toast, _ := c.toast.Current()
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Codes:   c.codes,
		Preset:  c.preset,
		Theme:   c.theme,
		Loading: c.loading,
		Toast:   toast,
	}
}

// Submit sends the buffer to the backend and saves the returned document as
// FileName. It returns ErrBusy while another submission is outstanding and
// ErrEmptyInput, without contacting the backend, when the buffer holds no codes.
// The buffer is left untouched on every path.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		c.record(ErrBusy, 0)
		return ErrBusy
	}
	normalized := codes.Normalize(c.codes)
	if normalized == "" {
		c.mu.Unlock()
		c.record(ErrEmptyInput, 0)
		return ErrEmptyInput
	}
	req := Request{Codes: normalized, Preset: c.preset}
	c.loading = true
	c.mu.Unlock()

	start := time.Now()
	err := c.generate(ctx, req)

	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()

	elapsed := time.Since(start)
	c.record(err, elapsed)
	if err != nil {
		c.logger.Warn("generate barcodes",
			slog.String("outcome", Outcome(err)),
			slog.String("preset", string(req.Preset)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		return err
	}
	c.logger.Info("generated barcodes",
		slog.Int("codes", codes.Count(req.Codes)),
		slog.String("preset", string(req.Preset)),
		slog.Duration("elapsed", elapsed))
	return nil
}

type generateResult struct {
	pdf []byte
	err error
}

func (c *Controller) generate(ctx context.Context, req Request) error {
	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	// Buffered so an abandoned call can finish without a reader.
	results := make(chan generateResult, 1)
	go func() {
		pdf, err := c.backend.Generate(callCtx, req)
		results <- generateResult{pdf: pdf, err: err}
	}()

	var res generateResult
	select {
	case <-callCtx.Done():
		return deadlineErr(callCtx.Err())
	case res = <-results:
	}
	// A response that raced the deadline is discarded like a late one.
	if err := callCtx.Err(); err != nil {
		return deadlineErr(err)
	}
	if res.err != nil {
		return deadlineErr(res.err)
	}

	if err := c.saver.Save(FileName, res.pdf); err != nil {
		return fmt.Errorf("generator: save %s: %w", FileName, err)
	}
	c.toast.Show(ReadyMessage, c.cfg.ToastTTL)
	if c.notifier != nil {
		c.notifier.Notify(ReadyMessage, c.cfg.ToastTTL)
	}
	return nil
}

func deadlineErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *Controller) record(err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveGenerate(Outcome(err), elapsed)
}
