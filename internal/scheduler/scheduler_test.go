package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eargollo/taxsheet/internal/engine"
)

func TestSetJob(t *testing.T) {
	s := New()
	if s.NextRunAt() != nil {
		t.Error("NextRunAt should be nil without a job")
	}
	if err := s.SetJob("not a cron", func() {}); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if err := s.SetJob("@every 1h", func() {}); err != nil {
		t.Fatalf("SetJob: %v", err)
	}
	if err := s.SetJob("@every 2h", func() {}); err != nil {
		t.Fatalf("replace job: %v", err)
	}
	if s.CronExpr() != "@every 2h" {
		t.Errorf("CronExpr = %q", s.CronExpr())
	}

	s.Start()
	defer s.Stop()
	next := s.NextRunAt()
	if next == nil {
		t.Fatal("NextRunAt = nil after start")
	}
	if d := time.Until(*next); d < time.Hour || d > 2*time.Hour+time.Minute {
		t.Errorf("next run in %v, want about 2h", d)
	}
	if len(s.c.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(s.c.Entries()))
	}
}

func TestAddJobInvalid(t *testing.T) {
	if err := New().AddJob("61 * * * *", func() {}); err == nil {
		t.Error("expected error")
	}
}

type fakeStarter struct {
	calls  int
	in     string
	out    string
	result error
}

func (f *fakeStarter) Start(_ context.Context, input, output string) (engine.Run, error) {
	f.calls++
	f.in, f.out = input, output
	return engine.Run{ID: "r"}, f.result
}

func TestRunJob(t *testing.T) {
	f := &fakeStarter{}
	RunJob(context.Background(), f, "/in", "/out")()
	if f.calls != 1 || f.in != "/in" || f.out != "/out" {
		t.Errorf("starter = %+v", f)
	}

	f.result = engine.ErrAlreadyRunning
	RunJob(context.Background(), f, "/in", "/out")()
	if f.calls != 2 {
		t.Errorf("calls = %d", f.calls)
	}
}

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestPurgeJob(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	PurgeJob(context.Background(), p, 30, func() time.Time { return now })()
	if want := now.AddDate(0, 0, -30); !p.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoff, want)
	}

	p.err = errors.New("locked")
	PurgeJob(context.Background(), p, 1, nil)()
}
