package statemachine

import (
	"log"
	"sync"
	"time"
)

// Scheduler runs the cooperative machines registered with it: Tick drains
// the activation and deactivation queues and then evaluates every active
// machine's Transition once (spec.md §4.K), mirroring
// Statemachine::doStatemachineProcessing. A single mutex serializes every
// method the way original_source's single interface_mutex does; State
// callbacks run with it released so a blocking call in one machine cannot
// stall another's tick (spec.md §5).
type Scheduler struct {
	mu         sync.Mutex
	active     []*Machine
	toActivate []*Machine
	toStop     []*Machine
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start enqueues m for activation on the next Tick with the given
// argument, available to m's states via Context.Argument for the whole
// run (spec.md §4.K).
func (s *Scheduler) Start(m *Machine, argument uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.status {
	case StatusWaitingForActivation:
		log.Printf("statemachine: %s: not added, already in activation queue", m.Name)
		return
	case StatusRunningAndWaitingForDeactivation:
		log.Printf("statemachine: %s: not added, waiting to be deactivated", m.Name)
		return
	case StatusRunning:
		log.Printf("statemachine: %s: not added, already running", m.Name)
		return
	case StatusRunningAndInitialized:
		log.Printf("statemachine: %s: not added, already running", m.Name)
		m.emitEvent(EventOnInit, 0)
		return
	}

	m.argument = argument
	m.status = StatusWaitingForActivation
	s.toActivate = append(s.toActivate, m)
}

// Stop enqueues m for deactivation on the next Tick.
func (s *Scheduler) Stop(m *Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.status {
	case StatusRunningAndWaitingForDeactivation:
		log.Printf("statemachine: %s: not stopped, already in deactivation queue", m.Name)
	case StatusWaitingForActivation:
		log.Printf("statemachine: %s: not stopped, still in activation queue", m.Name)
	case StatusRunning, StatusRunningAndInitialized:
		m.status = StatusRunningAndWaitingForDeactivation
		s.toStop = append(s.toStop, m)
	default:
		log.Printf("statemachine: %s: not stopped, wasn't running", m.Name)
	}
}

// SendSignal delivers signal to m's currently active state, visible only
// during that state's next Transition call. It returns false if m is not
// running.
func (s *Scheduler) SendSignal(m *Machine, signal uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !m.status.isRunning() {
		return false
	}
	m.hasSignal = true
	m.signal = signal
	return true
}

// IsActive reports whether m is queued for activation, running, or queued
// for deactivation.
func (s *Scheduler) IsActive(m *Machine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.status.isActive()
}

// IsRunning reports whether m is running (including mid-init or
// mid-deactivation).
func (s *Scheduler) IsRunning(m *Machine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.status.isRunning()
}

// Status returns m's current scheduling status.
func (s *Scheduler) Status(m *Machine) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.status
}

// RunningTime returns how long m has been running, or zero if it isn't.
func (s *Scheduler) RunningTime(m *Machine) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !m.status.isRunning() {
		return 0
	}
	return time.Since(m.startTime)
}

// Tick processes the activation queue, the deactivation queue, and then
// evaluates every active machine's Transition once (spec.md §4.K). Call
// it continuously from the application's main loop.
func (s *Scheduler) Tick() {
	s.mu.Lock()

	toActivate := s.toActivate
	s.toActivate = nil
	for _, m := range toActivate {
		if s.changeState(m, m.EntryState) {
			m.startTime = time.Now()
			m.status = StatusRunning
			if m.InitState != nil && *m.InitState == m.EntryState {
				m.emitEvent(EventOnInit, 0)
				m.status = StatusRunningAndInitialized
			}
			s.active = append(s.active, m)
			log.Printf("statemachine: %s activated", m.Name)
		} else {
			m.status = StatusStoppedOnError
			m.emitEvent(EventOnErrorShutdown, 0)
			log.Printf("statemachine: %s couldn't be activated", m.Name)
		}
	}

	toStop := s.toStop
	s.toStop = nil
	for _, m := range toStop {
		if m.status != StatusRunningAndWaitingForDeactivation {
			continue
		}
		if m.AbortState == nil {
			m.status = StatusStoppedGracefully
			m.emitEvent(EventOnGracefulShutdown, 0)
			s.active = removeMachine(s.active, m)
			log.Printf("statemachine: %s finished", m.Name)
		} else if !s.changeState(m, *m.AbortState) {
			m.status = StatusStoppedOnError
			m.emitEvent(EventOnErrorShutdown, 0)
			s.active = removeMachine(s.active, m)
			log.Printf("statemachine: %s couldn't enter abort state, cancelled", m.Name)
		}
	}

	current := s.active
	remaining := make([]*Machine, 0, len(current))
	for _, m := range current {
		if s.tickActive(m) {
			remaining = append(remaining, m)
		}
	}
	s.active = remaining

	s.mu.Unlock()
}

// tickActive evaluates one active machine's Transition and applies its
// result. It must be called with s.mu held; it releases and reacquires it
// around the State callbacks. It returns whether m should remain in the
// active list.
func (s *Scheduler) tickActive(m *Machine) bool {
	state := m.states[*m.current]
	ctx := m.context()

	s.mu.Unlock()
	t := state.Transition(ctx)
	s.mu.Lock()

	m.hasSignal = false

	switch t.kind {
	case kindFail:
		m.status = StatusStoppedOnError
		m.emitEvent(EventOnErrorShutdown, 0)
		log.Printf("statemachine: %s cancelled on error", m.Name)
		return false

	case kindFinish:
		m.status = StatusStoppedGracefully
		m.emitEvent(EventOnGracefulShutdown, 0)
		log.Printf("statemachine: %s finished", m.Name)
		return false

	case kindRestart:
		s.mu.Unlock()
		ok := state.Enter(m.context())
		s.mu.Lock()
		if !ok {
			m.status = StatusStoppedOnError
			m.emitEvent(EventOnErrorShutdown, 0)
			log.Printf("statemachine: %s cancelled on error", m.Name)
			return false
		}
		return true

	case kindNext:
		if t.next == *m.current {
			return true
		}
		if !s.changeState(m, t.next) {
			m.status = StatusStoppedOnError
			m.emitEvent(EventOnErrorShutdown, 0)
			log.Printf("statemachine: %s cancelled on error", m.Name)
			return false
		}
		return true

	default: // kindStay
		return true
	}
}

// changeState enters the state registered under id, releasing s.mu around
// the call. It must be called with s.mu held. It returns false (and
// leaves m.current unchanged) if id isn't registered or Enter fails.
func (s *Scheduler) changeState(m *Machine, id StateID) bool {
	state, ok := m.states[id]
	if !ok {
		log.Printf("statemachine: %s: state %d not registered", m.Name, id)
		return false
	}

	prev := m.current
	m.stateStartTime = time.Now()

	s.mu.Unlock()
	success := state.Enter(&Context{
		Argument:     m.argument,
		stateStart:   m.stateStartTime,
		machineStart: m.startTime,
		emit:         m.emitEvent,
	})
	s.mu.Lock()

	if !success {
		log.Printf("statemachine: %s: statechange failed", m.Name)
		return false
	}

	if prev == nil {
		log.Printf("statemachine: %s: entered initial state %d", m.Name, id)
	} else {
		log.Printf("statemachine: %s: %d --> %d", m.Name, *prev, id)
	}

	idCopy := id
	m.current = &idCopy
	if m.InitState != nil && id == *m.InitState && m.status == StatusRunning {
		m.emitEvent(EventOnInit, 0)
		m.status = StatusRunningAndInitialized
	}
	return true
}

func removeMachine(active []*Machine, target *Machine) []*Machine {
	out := make([]*Machine, 0, len(active))
	for _, m := range active {
		if m != target {
			out = append(out, m)
		}
	}
	return out
}
