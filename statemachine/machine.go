// Package statemachine implements the cooperative finite-state-machine
// scheduler (spec.md §4.K): a `State` trait of an entry action and a
// transition function, machines that register their states by id into an
// arena, and a `Scheduler` that drains activation/deactivation queues and
// ticks every active machine once per call.
//
// This follows spec.md §9's explicit re-architecture note for "intrusive
// inheritance in the State hierarchy": states are identified by a
// small-int StateID and register into a per-Machine arena instead of
// forming a pointer graph, and a transition function returns a Transition
// value (Stay/Next/Restart/Finish/Fail) instead of a raw State pointer,
// grounded on original_source/tina/tina++/im/statemachine.h/.cpp.
package statemachine

import "time"

// StateID identifies one state within a Machine's arena.
type StateID int

// State is one node of a machine's stateflow (spec.md §4.K).
type State interface {
	// Enter runs once, immediately after the scheduler selects this state.
	// Returning false aborts the whole machine with an error shutdown
	// (original_source's State::state_function).
	Enter(ctx *Context) bool

	// Transition is polled once per scheduler tick while this state is
	// active and chooses what happens next (original_source's
	// State::transition_function). It must return quickly: it runs with
	// the scheduler's internal lock released, but blocking it delays
	// every other machine's tick.
	Transition(ctx *Context) Transition
}

// transitionKind discriminates the Transition sum type (spec.md §9:
// "Transition { Stay, Next(StateId), Restart, Finish, Error }").
type transitionKind int

const (
	kindStay transitionKind = iota
	kindNext
	kindRestart
	kindFinish
	kindFail
)

// Transition is a Transition-function's return value.
type Transition struct {
	kind transitionKind
	next StateID
}

// Stay requests no state change (original_source's `return this`).
func Stay() Transition { return Transition{kind: kindStay} }

// Next requests a transition to the state registered under id.
func Next(id StateID) Transition { return Transition{kind: kindNext, next: id} }

// Restart requests that the current state's Enter run again without
// changing which state is active.
func Restart() Transition { return Transition{kind: kindRestart} }

// Finish requests a graceful shutdown of the machine.
func Finish() Transition { return Transition{kind: kindFinish} }

// Fail requests an error shutdown of the machine.
func Fail() Transition { return Transition{kind: kindFail} }

// Context is the read-only view of a Machine's running state a State's
// Enter/Transition methods receive. It is rebuilt fresh for every call
// (original_source copies the same fields into the State object before
// releasing its lock, for the same reason: callbacks must not read mutable
// scheduler state without synchronization).
type Context struct {
	Argument uint64

	hasSignal bool
	signal    uint64

	stateStart   time.Time
	machineStart time.Time
	emit         func(kind string, param uint64)
}

// HasSignal reports whether a signal was sent to the machine since the
// last tick (signals live only for the tick during which they arrive,
// spec.md §4.K / original_source's hasSignal_).
func (c *Context) HasSignal() bool { return c.hasSignal }

// Signal returns the most recently delivered signal's argument. Its value
// is meaningless unless HasSignal is true.
func (c *Context) Signal() uint64 { return c.signal }

// Runtime returns how long the current state has been active.
func (c *Context) Runtime() time.Duration { return time.Since(c.stateStart) }

// MachineRuntime returns how long the whole machine has been running.
func (c *Context) MachineRuntime() time.Duration { return time.Since(c.machineStart) }

// Emit pushes a custom event to the machine's EventQueue, if any (spec.md
// §4.K, State::emitEvent).
func (c *Context) Emit(kind string, param uint64) {
	if c.emit != nil {
		c.emit(kind, param)
	}
}

// Standard event kinds, emitted automatically around a machine's
// lifecycle (spec.md §4.K).
const (
	EventOnInit             = "on_init"
	EventOnGracefulShutdown = "on_graceful_shutdown"
	EventOnErrorShutdown    = "on_error_shutdown"
)

// Event is one item pushed to an EventQueue.
type Event struct {
	Machine string
	Kind    string
	Param   uint64
}

// EventQueue receives the events a Machine emits. A Machine started with
// a nil EventQueue runs silently (original_source's startSilent).
type EventQueue interface {
	Push(Event)
}

// Status is a Machine's scheduling state (spec.md §4.K).
type Status int

const (
	StatusNone Status = iota
	StatusWaitingForActivation
	StatusRunning
	StatusRunningAndInitialized
	StatusRunningAndWaitingForDeactivation
	StatusStoppedOnError
	StatusStoppedGracefully
)

func (s Status) isActive() bool {
	switch s {
	case StatusWaitingForActivation, StatusRunning, StatusRunningAndInitialized, StatusRunningAndWaitingForDeactivation:
		return true
	default:
		return false
	}
}

func (s Status) isRunning() bool {
	switch s {
	case StatusRunning, StatusRunningAndInitialized, StatusRunningAndWaitingForDeactivation:
		return true
	default:
		return false
	}
}

// Machine is one finite state machine: a named arena of States plus the
// entry/init/abort state ids that define its lifecycle (spec.md §4.K).
// Machines are driven exclusively through a Scheduler; none of Machine's
// exported methods are safe to call concurrently with a Scheduler tick
// except through the Scheduler itself.
type Machine struct {
	Name       string
	EntryState StateID
	InitState  *StateID
	AbortState *StateID

	EventQueue EventQueue

	states map[StateID]State

	status         Status
	argument       uint64
	current        *StateID
	startTime      time.Time
	stateStartTime time.Time
	hasSignal      bool
	signal         uint64
}

// NewMachine constructs a machine whose stateflow begins at entry. Use
// Register to populate its state arena before scheduling it.
func NewMachine(name string, entry StateID) *Machine {
	return &Machine{Name: name, EntryState: entry, states: make(map[StateID]State)}
}

// Register installs s as the state reachable via id. Call this, along with
// SetInitState and SetAbortState, before handing the machine to a
// Scheduler — none of the three are safe to call concurrently with a tick.
func (m *Machine) Register(id StateID, s State) {
	m.states[id] = s
}

// SetInitState marks id as the state whose entry emits EventOnInit and
// promotes the machine to StatusRunningAndInitialized.
func (m *Machine) SetInitState(id StateID) {
	m.InitState = &id
}

// SetAbortState marks id as the state entered when the machine is asked
// to stop. A nil AbortState (the default) finishes immediately without
// entering any state.
func (m *Machine) SetAbortState(id StateID) {
	m.AbortState = &id
}

func (m *Machine) emitEvent(kind string, param uint64) {
	if m.EventQueue == nil || kind == "" {
		return
	}
	m.EventQueue.Push(Event{Machine: m.Name, Kind: kind, Param: param})
}

func (m *Machine) context() *Context {
	return &Context{
		Argument:     m.argument,
		hasSignal:    m.hasSignal,
		signal:       m.signal,
		stateStart:   m.stateStartTime,
		machineStart: m.startTime,
		emit:         m.emitEvent,
	}
}
