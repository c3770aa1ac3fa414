// Package protocol defines the command and event messages exchanged between
// the processing engine and a presentation client. Messages travel as JSON
// envelopes over any duplex transport.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned by DecodeCommand for an unrecognised type.
var ErrUnknownCommand = errors.New("unknown command")

// CommandName identifies a presentation -> engine message.
type CommandName string

// Commands.
const (
	OpenSourceChooser      CommandName = "OPEN_SOURCE_CHOOSER"
	OpenDestinationChooser CommandName = "OPEN_DESTINATION_CHOOSER"
	StartProcessing        CommandName = "START_PROCESSING"
	CancelProcessing       CommandName = "CANCEL_PROCESSING"
)

// EventName identifies an engine -> presentation message.
type EventName string

// Events.
const (
	OpenSourceChooserResult      EventName = "OPEN_SOURCE_CHOOSER_RESULT"
	OpenDestinationChooserResult EventName = "OPEN_DESTINATION_CHOOSER_RESULT"
	AddLogEvent                  EventName = "ADD_LOG"
	ClearLogsEvent               EventName = "CLEAR_LOGS"
	UpdateStatsEvent             EventName = "UPDATE_STATS"
	ProcessingFinishedEvent      EventName = "PROCESSING_FINISHED"
	NoFilesInInputDirEvent       EventName = "ERROR.NO_FILES_IN_INPUT_DIR"
	OutputWriteFailedEvent       EventName = "ERROR.OUTPUT_WRITE_FAILED"
)

// State is the lifecycle state of a run.
type State string

// Run states.
const (
	Starting   State = "STARTING"
	ReadingDir State = "READING_DIR"
	Processing State = "PROCESSING"
	Finished   State = "FINISHED"
	Errored    State = "ERRORED"
	Cancelled  State = "CANCELLED"
)

// Terminal reports whether no further work happens in s.
func (s State) Terminal() bool {
	return s == Finished || s == Errored || s == Cancelled
}

// Snapshot is the UPDATE_STATS payload.
type Snapshot struct {
	TotalFiles       int   `json:"totalFiles"`
	CurrentFileIndex int   `json:"currentFileIndex"`
	State            State `json:"state"`
}

// ChooserResult is the payload of both chooser result events.
type ChooserResult struct {
	Canceled  bool     `json:"canceled"`
	FilePaths []string `json:"filePaths"`
}

// StartRequest is the START_PROCESSING payload.
type StartRequest struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// FinishedInfo is the PROCESSING_FINISHED payload.
type FinishedInfo struct {
	RunID      string `json:"runId"`
	OutputFile string `json:"outputFile"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
}

// Failure is the payload of terminal error events that carry a reason.
type Failure struct {
	Message string `json:"message"`
}

// Envelope wraps every message with a type discriminator.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EnvelopeRaw is used when receiving: Payload is decoded once Type is known.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one outbound message.
type Event struct {
	Name    EventName
	Payload any
}

// MarshalJSON encodes the event as an Envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(Envelope{Type: string(e.Name), Payload: e.Payload})
}

// AddLog builds an ADD_LOG event.
func AddLog(message string) Event { return Event{Name: AddLogEvent, Payload: message} }

// ClearLogs builds a CLEAR_LOGS event.
func ClearLogs() Event { return Event{Name: ClearLogsEvent} }

// UpdateStats builds an UPDATE_STATS event.
func UpdateStats(s Snapshot) Event { return Event{Name: UpdateStatsEvent, Payload: s} }

// NoFilesInInputDir builds the empty-source terminal error event.
func NoFilesInInputDir() Event { return Event{Name: NoFilesInInputDirEvent} }

// OutputWriteFailed builds the output-write terminal error event.
func OutputWriteFailed(message string) Event {
	return Event{Name: OutputWriteFailedEvent, Payload: Failure{Message: message}}
}

// ProcessingFinished builds the terminal success event.
func ProcessingFinished(info FinishedInfo) Event {
	return Event{Name: ProcessingFinishedEvent, Payload: info}
}

// ChooserReply builds the result event answering a chooser command.
func ChooserReply(cmd CommandName, result ChooserResult) Event {
	if result.FilePaths == nil {
		result.FilePaths = []string{}
	}
	name := OpenSourceChooserResult
	if cmd == OpenDestinationChooser {
		name = OpenDestinationChooserResult
	}
	return Event{Name: name, Payload: result}
}

// Sink receives events in emission order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Command is one inbound message. Start is set only for StartProcessing.
type Command struct {
	Name  CommandName
	Start StartRequest
}

// DecodeCommand parses a command envelope.
func DecodeCommand(data []byte) (Command, error) {
	var env EnvelopeRaw
	if err := json.Unmarshal(data, &env); err != nil {
		return Command{}, fmt.Errorf("decode envelope: %w", err)
	}

	cmd := Command{Name: CommandName(env.Type)}
	switch cmd.Name {
	case OpenSourceChooser, OpenDestinationChooser, CancelProcessing:
		return cmd, nil
	case StartProcessing:
		if len(env.Payload) == 0 {
			return Command{}, fmt.Errorf("%s: missing payload", cmd.Name)
		}
		if err := json.Unmarshal(env.Payload, &cmd.Start); err != nil {
			return Command{}, fmt.Errorf("%s payload: %w", cmd.Name, err)
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

// EncodeCommand marshals cmd into an envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	env := Envelope{Type: string(cmd.Name)}
	if cmd.Name == StartProcessing {
		env.Payload = cmd.Start
	}
	return json.Marshal(env)
}
