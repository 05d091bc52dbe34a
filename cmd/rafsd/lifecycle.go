package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// State is the daemon lifecycle of spec section 9's design notes: a single
// linear progression forward, plus Interrupted as an absorbing state any
// signal can force from whatever state the event loop is in.
type State int

const (
	StateInit State = iota
	StateReady
	StateRunning
	StateUpgrading
	StateInterrupted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateUpgrading:
		return "upgrading"
	case StateInterrupted:
		return "interrupted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	eventMountDone eventKind = iota
	eventUpgradeStart
	eventUpgradeDone
	eventSignal
	eventStop
)

type event struct {
	kind eventKind
}

// Lifecycle drives the daemon's state through a single-consumer event
// channel: signal handlers and mount completion callbacks only ever enqueue
// events, they never touch state directly, so all transitions are observed
// serially from one goroutine.
type Lifecycle struct {
	logger   zerolog.Logger
	state    State
	events   chan event
	done     chan struct{}
	virtiofs bool
}

func NewLifecycle(logger zerolog.Logger, virtiofs bool) *Lifecycle {
	return &Lifecycle{
		logger:   logger,
		state:    StateInit,
		events:   make(chan event, 8),
		done:     make(chan struct{}),
		virtiofs: virtiofs,
	}
}

func (l *Lifecycle) State() State { return l.state }

// WatchSignals installs SIGINT/SIGTERM handlers that enqueue eventSignal.
// In virtio-fs mode there is no mechanism to unblock the VMM's recvmsg, so a
// signal exits the process immediately rather than draining the event loop.
func (l *Lifecycle) WatchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		if l.virtiofs {
			os.Exit(0)
		}
		l.events <- event{kind: eventSignal}
	}()
}

func (l *Lifecycle) NotifyMountDone()    { l.events <- event{kind: eventMountDone} }
func (l *Lifecycle) NotifyUpgradeStart() { l.events <- event{kind: eventUpgradeStart} }
func (l *Lifecycle) NotifyUpgradeDone()  { l.events <- event{kind: eventUpgradeDone} }
func (l *Lifecycle) Stop()               { l.events <- event{kind: eventStop} }

// Run consumes events until the daemon reaches StateStopped or is
// interrupted, returning once the event loop has drained.
func (l *Lifecycle) Run() {
	l.transition(StateReady)
	for {
		ev := <-l.events
		switch ev.kind {
		case eventMountDone:
			l.transition(StateRunning)
		case eventUpgradeStart:
			l.transition(StateUpgrading)
		case eventUpgradeDone:
			l.transition(StateRunning)
		case eventSignal:
			l.transition(StateInterrupted)
			close(l.done)
			return
		case eventStop:
			l.transition(StateStopped)
			close(l.done)
			return
		}
	}
}

func (l *Lifecycle) Done() <-chan struct{} { return l.done }

func (l *Lifecycle) transition(s State) {
	l.logger.Info().Str("from", l.state.String()).Str("to", s.String()).Msg("lifecycle transition")
	l.state = s
}
