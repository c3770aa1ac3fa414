package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/sheet"
	"github.com/eargollo/taxsheet/internal/store"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight}, false, 0)
	if !strings.Contains(out, "A") || !strings.Contains(out, "3") {
		t.Errorf("table = %q", out)
	}
	if renderTable(nil, nil, nil, false, 0) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestBuildRows(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	runs := []store.Run{{
		ID:             "0123456789abcdef",
		Status:         store.StatusFinished,
		StartedAt:      now.Add(-2 * time.Hour),
		TotalFiles:     3,
		ProcessedFiles: 2,
		SkippedFiles:   1,
		OutputFile:     "05_03_2024__10_00_00.xlsx",
	}}
	row := buildRunRows(runs, now)[0]
	if row[0] != "01234567" || row[2] != "2 hours ago" || row[3] != "2/3" || row[4] != "1" {
		t.Errorf("run row = %v", row)
	}

	rec := buildRecordRows([]sheet.Record{{TaxID: "A1", CGST: 1234.5, Year: 2024}})[0]
	if rec[2] != "1,234.5" || rec[5] != "2024" {
		t.Errorf("record row = %v", rec)
	}
}

func writeSource(t *testing.T, dir, name string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	header := []interface{}{"GSTIN", "Name", "CGST", "SGST", "Year"}
	row := []interface{}{"AAA", "Alpha", 10, 10, 2024}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &row); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func TestProcessOnce(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeSource(t, src, "a.xlsx")

	var out bytes.Buffer
	p := newPrinter(&out, false)
	ctl := engine.NewController(p, engine.Options{})
	if err := processOnce(context.Background(), ctl, p, src, dst); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if ctl.Snapshot().State != protocol.Starting {
		t.Errorf("state after acknowledge = %s", ctl.Snapshot().State)
	}
	text := out.String()
	for _, want := range []string{"Processing starts", "Processed file 1 of 1 -- a.xlsx", "Processing finished", "1 processed, 0 skipped"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Error("plain output contains color codes")
	}
}

func TestProcessOnceNoFiles(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, false)
	ctl := engine.NewController(p, engine.Options{})
	err := processOnce(context.Background(), ctl, p, t.TempDir(), t.TempDir())
	if !errors.Is(err, engine.ErrNoInputFiles) {
		t.Fatalf("err = %v, want ErrNoInputFiles", err)
	}
}

func TestProcessOnceOutputFailure(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "a.xlsx")

	var out bytes.Buffer
	p := newPrinter(&out, false)
	ctl := engine.NewController(p, engine.Options{})
	err := processOnce(context.Background(), ctl, p, src, filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(err.Error(), "output write failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessOnceCancelled(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "a.xlsx")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	p := newPrinter(&out, false)
	ctl := engine.NewController(p, engine.Options{})
	err := processOnce(ctx, ctl, p, src, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !strings.Contains(out.String(), "Processing stops") {
		t.Errorf("output missing stop line:\n%s", out.String())
	}
}
