package picker

import (
	"context"
	"testing"

	"github.com/eargollo/taxsheet/internal/protocol"
)

func TestStatic(t *testing.T) {
	s := Static{Source: "/in"}
	res, err := s.Pick(context.Background(), Source)
	if err != nil || res.Canceled || len(res.FilePaths) != 1 || res.FilePaths[0] != "/in" {
		t.Errorf("source = %+v, %v", res, err)
	}
	res, err = s.Pick(context.Background(), Destination)
	if err != nil || !res.Canceled {
		t.Errorf("destination = %+v, %v", res, err)
	}
}

func TestPurposeOf(t *testing.T) {
	if PurposeOf(protocol.OpenDestinationChooser) != Destination {
		t.Error("destination chooser mapped wrong")
	}
	if PurposeOf(protocol.OpenSourceChooser) != Source {
		t.Error("source chooser mapped wrong")
	}
}

func TestCommand(t *testing.T) {
	ctx := context.Background()

	res, err := Command{Argv: []string{"sh", "-c", `echo "/data/$TAXSHEET_PICK"`}}.Pick(ctx, Destination)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if res.Canceled || len(res.FilePaths) != 1 || res.FilePaths[0] != "/data/destination" {
		t.Errorf("result = %+v", res)
	}

	res, err = Command{Argv: []string{"sh", "-c", "exit 1"}}.Pick(ctx, Source)
	if err != nil || !res.Canceled {
		t.Errorf("dismissed dialog = %+v, %v", res, err)
	}

	if _, err := (Command{Argv: []string{"/definitely/not/here"}}).Pick(ctx, Source); err == nil {
		t.Error("expected error for missing program")
	}
	if _, err := (Command{}).Pick(ctx, Source); err == nil {
		t.Error("expected error for empty command")
	}
}
