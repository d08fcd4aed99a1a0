package statemachine

import "time"

// DelayState waits for a fixed Duration after entry, then transitions to
// Next, optionally emitting an event first (original_source's
// DelayedTransitionState convenience class).
type DelayState struct {
	Duration time.Duration
	Next     StateID

	// EventKind, if non-empty, is emitted (with EventParam) once the delay
	// elapses and the transition fires.
	EventKind  string
	EventParam uint64
}

// Enter always succeeds; the delay is measured from Context.Runtime, not
// from Enter itself, so DelayState needs no mutable fields of its own and
// can be shared by value across machines.
func (d DelayState) Enter(ctx *Context) bool { return true }

// Transition stays until Runtime reaches Duration, then emits EventKind
// (if set) and moves to Next.
func (d DelayState) Transition(ctx *Context) Transition {
	if ctx.Runtime() < d.Duration {
		return Stay()
	}
	if d.EventKind != "" {
		ctx.Emit(d.EventKind, d.EventParam)
	}
	return Next(d.Next)
}

// WaitForSignalState stays until any signal is sent to the machine, then
// transitions to Next (original_source's states that gate on
// hasSignal_/getSignal()).
type WaitForSignalState struct {
	Next StateID
}

// Enter always succeeds.
func (w WaitForSignalState) Enter(ctx *Context) bool { return true }

// Transition moves to Next as soon as a signal has arrived.
func (w WaitForSignalState) Transition(ctx *Context) Transition {
	if !ctx.HasSignal() {
		return Stay()
	}
	return Next(w.Next)
}
