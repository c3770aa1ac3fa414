package channel

import (
	"context"
	"log/slog"

	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/picker"
	"github.com/eargollo/taxsheet/internal/protocol"
)

// Router dispatches inbound commands. Chooser results go back to the
// requesting client only; everything else reaches clients through the hub.
type Router struct {
	base   context.Context
	ctl    *engine.Controller
	picker picker.Picker
}

// NewRouter returns a router. Runs it starts live until base is cancelled.
// A nil picker answers every chooser request as canceled.
func NewRouter(base context.Context, ctl *engine.Controller, p picker.Picker) *Router {
	if p == nil {
		p = picker.Static{}
	}
	return &Router{base: base, ctl: ctl, picker: p}
}

// Handle executes cmd. reply receives events meant for the sender alone.
// Engine errors are returned for logging; they are already visible to
// clients through the event stream.
func (r *Router) Handle(ctx context.Context, cmd protocol.Command, reply protocol.Sink) error {
	switch cmd.Name {
	case protocol.OpenSourceChooser, protocol.OpenDestinationChooser:
		res, err := r.picker.Pick(ctx, picker.PurposeOf(cmd.Name))
		if err != nil {
			slog.Warn("folder chooser failed", "command", cmd.Name, "error", err)
			res = protocol.ChooserResult{Canceled: true}
		}
		reply.Emit(protocol.ChooserReply(cmd.Name, res))
		return err
	case protocol.StartProcessing:
		_, err := r.ctl.Start(r.base, cmd.Start.Input, cmd.Start.Output)
		return err
	case protocol.CancelProcessing:
		return r.ctl.Cancel()
	default:
		return protocol.ErrUnknownCommand
	}
}
