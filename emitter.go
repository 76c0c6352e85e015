package mnemon

import (
	"time"

	"github.com/google/uuid"
)

// Emitter receives the observable events of a step as they happen: the
// model's inner monologue, outbound messages to the user, and tool activity.
// Each event carries the id and timestamp of the message it belongs to, so
// streamed frames can be correlated with the durable log. The server adapts
// an Emitter into a stream; the default discards.
type Emitter interface {
	InternalMonologue(text string, id uuid.UUID, at time.Time)
	AssistantMessage(text string, id uuid.UUID, at time.Time)
	FunctionCall(name, arguments string, id uuid.UUID, at time.Time)
	FunctionReturn(ok bool, text string, id uuid.UUID, at time.Time)
}

type nopEmitter struct{}

func (nopEmitter) InternalMonologue(string, uuid.UUID, time.Time)    {}
func (nopEmitter) AssistantMessage(string, uuid.UUID, time.Time)     {}
func (nopEmitter) FunctionCall(string, string, uuid.UUID, time.Time) {}
func (nopEmitter) FunctionReturn(bool, string, uuid.UUID, time.Time) {}

// NopEmitter returns an Emitter that discards every event.
func NopEmitter() Emitter { return nopEmitter{} }
