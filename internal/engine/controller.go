// Package engine runs processing jobs: it scans a source directory, extracts
// one record per workbook, writes the consolidated workbook and reports
// progress and log lines as protocol events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/eargollo/taxsheet/internal/logbuf"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/sheet"
	"github.com/eargollo/taxsheet/internal/store"
)

// ErrAlreadyRunning is returned when a run is started while one is in progress.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// ErrNoActiveRun is returned when cancel is called with nothing to cancel.
var ErrNoActiveRun = errors.New("no run is currently active")

// ErrNoInputFiles is returned when the source directory holds no input files.
var ErrNoInputFiles = errors.New("no input files in source directory")

// ErrMissingDirectory is returned when the source or destination is empty.
var ErrMissingDirectory = errors.New("source and destination directories are required")

// OutputTimeLayout names output workbooks after the run's start time.
const OutputTimeLayout = "02_01_2006__15_04_05"

// DefaultExtension is the input file extension used when none is configured.
const DefaultExtension = ".xlsx"

// Store persists runs and their records. *store.Store satisfies it.
type Store interface {
	CreateRun(ctx context.Context, id, sourceDir, destDir string) error
	InsertRecords(ctx context.Context, runID string, records []sheet.Record) error
	FinishRun(ctx context.Context, id string, o store.Outcome) error
}

// ArtifactWriter writes the consolidated workbook. It must leave either a
// complete file at path or nothing.
type ArtifactWriter interface {
	WriteWorkbook(path string, records []sheet.Record) error
}

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	Extension   string
	Extractor   sheet.Extractor
	Writer      ArtifactWriter
	Store       Store // optional
	LogCapacity int
	Now         func() time.Time
	NewID       func() string
}

func (o Options) withDefaults() Options {
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	if o.Extractor == nil {
		o.Extractor = sheet.HeaderExtractor{}
	}
	if o.Writer == nil {
		o.Writer = sheet.WorkbookWriter{}
	}
	if o.LogCapacity <= 0 {
		o.LogCapacity = logbuf.DefaultCapacity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Run describes one processing attempt.
type Run struct {
	ID         string    `json:"id"`
	SourceDir  string    `json:"sourceDir"`
	DestDir    string    `json:"destDir"`
	OutputFile string    `json:"outputFile"`
	InputFiles []string  `json:"inputFiles"`
	StartedAt  time.Time `json:"startedAt"`
}

// Controller owns at most one run at a time. It is safe for concurrent use.
// All events are emitted to the sink while the controller lock is held, so
// the sink sees them in program order and must not block.
type Controller struct {
	mu      sync.Mutex
	sink    protocol.Sink
	opts    Options
	logs    *logbuf.Buffer
	tracker *Tracker

	// run is the active run, or a finished run awaiting acknowledgment.
	run      *Run
	busy     bool
	cancelFn context.CancelFunc
	done     chan struct{}
}

// NewController returns an idle controller reporting to sink.
func NewController(sink protocol.Sink, opts Options) *Controller {
	if sink == nil {
		sink = protocol.Discard
	}
	c := &Controller{
		sink: sink,
		opts: opts.withDefaults(),
	}
	c.logs = logbuf.New(c.opts.LogCapacity)
	c.tracker = NewTracker(func(s protocol.Snapshot) {
		c.sink.Emit(protocol.UpdateStats(s))
	})
	return c
}

// Start begins a run over the files in input, writing the result to output.
// The directory is scanned before Start returns; per-file work continues in
// the background under ctx, which also cancels the run when done.
func (c *Controller) Start(ctx context.Context, input, output string) (Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		c.logLocked(c.run.ID, "Processing already running, start request ignored")
		return Run{}, ErrAlreadyRunning
	}
	input, output = strings.TrimSpace(input), strings.TrimSpace(output)
	if input == "" || output == "" {
		return Run{}, ErrMissingDirectory
	}

	now := c.opts.Now()
	run := &Run{
		ID:         c.opts.NewID(),
		SourceDir:  input,
		DestDir:    output,
		OutputFile: filepath.Join(output, now.Format(OutputTimeLayout)+".xlsx"),
		StartedAt:  now,
	}
	if c.opts.Store != nil {
		if err := c.opts.Store.CreateRun(ctx, run.ID, input, output); err != nil {
			return Run{}, fmt.Errorf("create run record: %w", err)
		}
	}

	c.run = nil
	if c.tracker.Snapshot().State != protocol.Starting {
		c.tracker.Reset()
	}
	c.logs.Clear()
	c.sink.Emit(protocol.ClearLogs())

	c.run = run
	c.busy = true
	c.logLocked(run.ID, "Processing starts")
	c.logLocked(run.ID, "Source Directory -- "+input)
	c.logLocked(run.ID, "Destination Directory -- "+output)
	if filepath.Clean(input) == filepath.Clean(output) {
		c.logLocked(run.ID, "Warning -- destination is the source directory, later runs will list the output as input")
		slog.Warn("destination equals source", "run_id", run.ID, "dir", output)
	}
	c.logLocked(run.ID, "Process id -- "+run.ID)
	c.logLocked(run.ID, "Output File -- "+filepath.Base(run.OutputFile))

	c.tracker.SetState(protocol.ReadingDir)
	c.logLocked(run.ID, "Reading directory")
	files, err := ListInputFiles(input, c.opts.Extension)
	if err != nil || len(files) == 0 {
		if err != nil {
			c.logLocked(run.ID, "Unable to read directory -- "+err.Error())
		}
		c.logLocked(run.ID, fmt.Sprintf("No *%s files in directory", c.opts.Extension))
		c.sink.Emit(protocol.NoFilesInInputDir())
		c.tracker.SetState(protocol.Errored)
		c.finishRecord(ctx, run.ID, store.Outcome{Status: store.StatusFailed, Error: ErrNoInputFiles.Error()})
		c.resetLocked()
		if err != nil {
			return Run{}, fmt.Errorf("%w: %w", ErrNoInputFiles, err)
		}
		return Run{}, ErrNoInputFiles
	}

	if ctx.Err() != nil {
		c.logLocked(run.ID, "Processing stops")
		c.tracker.SetState(protocol.Cancelled)
		c.finishRecord(ctx, run.ID, store.Outcome{Status: store.StatusCancelled, TotalFiles: len(files)})
		c.resetLocked()
		return Run{}, ctx.Err()
	}

	run.InputFiles = files
	c.logLocked(run.ID, fmt.Sprintf("Total %d files found", len(files)))
	c.tracker.SetTotal(len(files))
	c.tracker.SetState(protocol.Processing)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel
	c.done = make(chan struct{})
	go c.execute(runCtx, run, c.done)

	return *run, nil
}

// execute processes the run's files one at a time. Cancellation is observed
// before each file; a file already being read is finished first.
func (c *Controller) execute(ctx context.Context, run *Run, done chan struct{}) {
	defer close(done)

	var (
		records []sheet.Record
		skipped int
		total   = len(run.InputFiles)
	)
	for i, path := range run.InputFiles {
		if ctx.Err() != nil {
			c.stopCancelled(ctx, run, len(records), skipped)
			return
		}
		if i > 0 {
			c.mu.Lock()
			c.tracker.Advance()
			c.mu.Unlock()
		}

		rec, err := c.opts.Extractor.Extract(path)

		c.mu.Lock()
		if err != nil {
			skipped++
			c.logLocked(run.ID, "Skipping file -- "+err.Error())
		} else {
			records = append(records, rec)
			c.logLocked(run.ID, fmt.Sprintf("Processed file %d of %d -- %s", i+1, total, filepath.Base(path)))
		}
		c.mu.Unlock()
	}
	if ctx.Err() != nil {
		c.stopCancelled(ctx, run, len(records), skipped)
		return
	}

	outcome := store.Outcome{
		OutputFile:     run.OutputFile,
		TotalFiles:     total,
		ProcessedFiles: len(records),
		SkippedFiles:   skipped,
	}
	if err := c.persist(ctx, run, records); err != nil {
		outcome.Status = store.StatusFailed
		outcome.OutputFile = ""
		outcome.Error = err.Error()
		c.finishRecord(ctx, run.ID, outcome)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.logLocked(run.ID, "Unable to write output -- "+err.Error())
		c.sink.Emit(protocol.OutputWriteFailed(err.Error()))
		c.tracker.SetState(protocol.Errored)
		c.resetLocked()
		return
	}

	outcome.Status = store.StatusFinished
	c.finishRecord(ctx, run.ID, outcome)

	size := "unknown size"
	if fi, err := os.Stat(run.OutputFile); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logLocked(run.ID, fmt.Sprintf("Output written -- %s (%s)", filepath.Base(run.OutputFile), size))
	c.logLocked(run.ID, fmt.Sprintf("Processing finished -- %d processed, %d skipped", len(records), skipped))
	c.tracker.SetState(protocol.Finished)
	c.sink.Emit(protocol.ProcessingFinished(protocol.FinishedInfo{
		RunID:      run.ID,
		OutputFile: run.OutputFile,
		Processed:  len(records),
		Skipped:    skipped,
	}))
	c.busy = false
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
}

// persist writes the workbook and then the store rows. If the rows cannot be
// stored the workbook is removed again.
func (c *Controller) persist(ctx context.Context, run *Run, records []sheet.Record) error {
	if err := c.opts.Writer.WriteWorkbook(run.OutputFile, records); err != nil {
		return err
	}
	if c.opts.Store == nil || len(records) == 0 {
		return nil
	}
	if err := c.opts.Store.InsertRecords(context.WithoutCancel(ctx), run.ID, records); err != nil {
		if rmErr := os.Remove(run.OutputFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("remove output after store failure", "run_id", run.ID, "error", rmErr)
		}
		return fmt.Errorf("store records: %w", err)
	}
	return nil
}

func (c *Controller) stopCancelled(ctx context.Context, run *Run, processed, skipped int) {
	c.finishRecord(ctx, run.ID, store.Outcome{
		Status:         store.StatusCancelled,
		TotalFiles:     len(run.InputFiles),
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logLocked(run.ID, "Processing stops")
	c.tracker.SetState(protocol.Cancelled)
	c.resetLocked()
}

// finishRecord updates the run history row. Failures are logged only.
func (c *Controller) finishRecord(ctx context.Context, id string, o store.Outcome) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.FinishRun(context.WithoutCancel(ctx), id, o); err != nil {
		slog.Warn("update run record", "run_id", id, "error", err)
	}
}

// Cancel stops the active run. After a run has finished, Cancel acknowledges
// it and returns the progress to idle. Returns ErrNoActiveRun otherwise.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.busy:
		slog.Info("cancel requested", "run_id", c.run.ID)
		c.cancelFn()
		return nil
	case c.run != nil:
		c.run = nil
		c.tracker.Reset()
		return nil
	default:
		slog.Info("cancel ignored: no active run")
		return ErrNoActiveRun
	}
}

// Wait blocks until the background part of the latest run has returned.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Snapshot returns the current progress.
func (c *Controller) Snapshot() protocol.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Snapshot()
}

// ActiveRun returns the active or unacknowledged run, if any.
func (c *Controller) ActiveRun() (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return Run{}, false
	}
	return *c.run, true
}

// Busy reports whether a run is being processed.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Logs returns the buffered log entries, oldest first.
func (c *Controller) Logs() []logbuf.Entry {
	return c.logs.Entries()
}

// Sync calls fn with the events that rebuild the current view (cleared logs,
// every buffered line, the latest progress). No other event is emitted while
// fn runs, so a subscriber registered inside fn misses nothing.
func (c *Controller) Sync(fn func(replay []protocol.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.logs.Entries()
	replay := make([]protocol.Event, 0, len(entries)+2)
	replay = append(replay, protocol.ClearLogs())
	for _, e := range entries {
		replay = append(replay, protocol.AddLog(e.String()))
	}
	replay = append(replay, protocol.UpdateStats(c.tracker.Snapshot()))
	fn(replay)
}

// logLocked appends a user-facing line and mirrors it to the process log.
func (c *Controller) logLocked(runID, msg string) {
	e := c.logs.Append(msg)
	c.sink.Emit(protocol.AddLog(e.String()))
	slog.Info(msg, "run_id", runID)
}

// resetLocked drops the run and returns progress to idle.
func (c *Controller) resetLocked() {
	c.run = nil
	c.busy = false
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	c.tracker.Reset()
}
