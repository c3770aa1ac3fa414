package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/eargollo/taxsheet/internal/db"
	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/sheet"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var source, destination string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one consolidation in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if source == "" {
				source = cfg.SourceDir
			}
			if destination == "" {
				destination = cfg.DestinationDir
			}
			// The run log is printed directly; keep the process log quiet.
			if !verbose {
				setupLogging(slog.LevelWarn)
			}

			st, database, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer database.Close()
			lock, err := db.Lock(cfg.DBPath)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			out := cmd.OutOrStdout()
			p := newPrinter(out, isTerminal(out))
			ctl := engine.NewController(p, engine.Options{
				Extension:   cfg.Extension,
				Extractor:   sheet.ExtractorFor(cfg.Extension, cfg.Columns),
				Store:       st,
				LogCapacity: cfg.LogCapacity,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return processOnce(runCtx, ctl, p, source, destination)
		},
	}
	cmd.Flags().StringVarP(&source, "input", "i", "", "Source folder (defaults to source_dir)")
	cmd.Flags().StringVarP(&destination, "output", "o", "", "Destination folder (defaults to destination_dir)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Keep the configured log level")
	return cmd
}

// processOnce starts a run, waits for it and acknowledges a finished run.
func processOnce(ctx context.Context, ctl *engine.Controller, p *printer, source, destination string) error {
	if _, err := ctl.Start(ctx, source, destination); err != nil {
		return err
	}
	ctl.Wait()
	p.done()

	// Failed and cancelled runs reset the controller, so the outcome comes
	// from the events seen.
	state, msg := p.outcome()
	switch state {
	case protocol.Finished:
		return ctl.Cancel()
	case protocol.Cancelled:
		return context.Canceled
	default:
		if msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("run ended in state %s", state)
	}
}

// printer renders controller events on a terminal or a plain stream. Events
// arrive under the controller lock, so Emit only writes.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	tty     bool
	bar     *progressbar.ProgressBar
	last    protocol.State
	lastErr string

	skip, ok, fail *color.Color
}

func newPrinter(out io.Writer, tty bool) *printer {
	p := &printer{
		out:  out,
		tty:  tty,
		skip: color.New(color.FgYellow),
		ok:   color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.skip, p.ok, p.fail} {
		if tty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Emit implements protocol.Sink.
func (p *printer) Emit(e protocol.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Name {
	case protocol.AddLogEvent:
		line, _ := e.Payload.(string)
		p.clearBar()
		p.colorFor(line).Fprintln(p.out, line)
	case protocol.UpdateStatsEvent:
		snap, _ := e.Payload.(protocol.Snapshot)
		p.progress(snap)
	case protocol.OutputWriteFailedEvent:
		if f, ok := e.Payload.(protocol.Failure); ok {
			p.lastErr = "output write failed: " + f.Message
			p.clearBar()
			p.fail.Fprintln(p.out, p.lastErr)
		}
	case protocol.NoFilesInInputDirEvent:
		p.lastErr = engine.ErrNoInputFiles.Error()
	case protocol.ProcessingFinishedEvent:
		if info, ok := e.Payload.(protocol.FinishedInfo); ok {
			p.clearBar()
			p.ok.Fprintf(p.out, "%s (%d processed, %d skipped)\n", info.OutputFile, info.Processed, info.Skipped)
		}
	}
}

func (p *printer) colorFor(line string) *color.Color {
	switch {
	case strings.Contains(line, "Skipping file"):
		return p.skip
	case strings.Contains(line, "Processing finished"):
		return p.ok
	case strings.Contains(line, "Processing stops"):
		return p.fail
	}
	return color.New(color.Reset)
}

// progress drives the bar on a terminal. Plain streams rely on the
// "Processed file" log lines instead.
func (p *printer) progress(s protocol.Snapshot) {
	if s.State.Terminal() {
		p.last = s.State
	}
	if !p.tty || s.State != protocol.Processing || s.TotalFiles == 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(s.TotalFiles,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("processing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(s.CurrentFileIndex)
}

func (p *printer) clearBar() {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
}

func (p *printer) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

// outcome returns the last terminal state and failure message seen.
func (p *printer) outcome() (protocol.State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.lastErr
}
