// Package picker answers the folder chooser commands.
package picker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/eargollo/taxsheet/internal/protocol"
)

// Purpose says which folder is being chosen.
type Purpose string

// Purposes.
const (
	Source      Purpose = "source"
	Destination Purpose = "destination"
)

// PurposeOf maps a chooser command to its purpose.
func PurposeOf(cmd protocol.CommandName) Purpose {
	if cmd == protocol.OpenDestinationChooser {
		return Destination
	}
	return Source
}

// Picker asks for a folder. A dismissed dialog is a result with Canceled
// set, not an error.
type Picker interface {
	Pick(ctx context.Context, p Purpose) (protocol.ChooserResult, error)
}

// Static answers with configured folders. An empty folder is reported as
// canceled.
type Static struct {
	Source      string
	Destination string
}

// Pick implements Picker.
func (s Static) Pick(_ context.Context, p Purpose) (protocol.ChooserResult, error) {
	dir := s.Source
	if p == Destination {
		dir = s.Destination
	}
	if dir == "" {
		return protocol.ChooserResult{Canceled: true, FilePaths: []string{}}, nil
	}
	return protocol.ChooserResult{FilePaths: []string{dir}}, nil
}

// Command runs an external dialog program, for example
// ["zenity", "--file-selection", "--directory"]. The first line of its
// standard output is the chosen folder; a non-zero exit means the user
// dismissed the dialog.
type Command struct {
	Argv []string
}

// Pick implements Picker.
func (c Command) Pick(ctx context.Context, p Purpose) (protocol.ChooserResult, error) {
	if len(c.Argv) == 0 {
		return protocol.ChooserResult{}, errors.New("picker command is empty")
	}
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(cmd.Environ(), "TAXSHEET_PICK="+string(p))
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return protocol.ChooserResult{Canceled: true, FilePaths: []string{}}, nil
	}
	if err != nil {
		return protocol.ChooserResult{}, fmt.Errorf("run picker %s: %w", c.Argv[0], err)
	}

	line, _, _ := strings.Cut(stdout.String(), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return protocol.ChooserResult{Canceled: true, FilePaths: []string{}}, nil
	}
	return protocol.ChooserResult{FilePaths: []string{line}}, nil
}
