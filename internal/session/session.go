// Package session holds per-connection conversation state for the chat transport.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

var (
	// ErrEmptyTurn is returned for a blank user turn; the turn is ignored.
	ErrEmptyTurn = errors.New("empty turn")
	// ErrInterrupted is returned when the turn was interrupted; its answer must not be delivered.
	ErrInterrupted = errors.New("turn interrupted")
	// ErrClosed is returned for turns on a closed session.
	ErrClosed = errors.New("session closed")
)

// Asker answers a single question.
type Asker interface {
	Ask(ctx context.Context, question string) *models.ChatAnswer
}

// State is a session lifecycle state.
type State int

const (
	StateOpen State = iota
	StateAwaitingTurn
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateAwaitingTurn:
		return "awaiting_turn"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the conversation state of one connection. History holds the
// most recent user turns, oldest first.
//
// Turns are numbered when the transport accepts them, before they are queued.
// An interrupt covers every turn accepted so far, including ones that have not
// started yet, so barging in right after asking always drops that answer.
type Session struct {
	id          string
	asker       Asker
	historySize int
	onInterrupt func()

	mu          sync.Mutex
	state       State
	history     []string
	accepted    uint64
	interrupted uint64
	queued      int
	cancelled   bool
	cancelTurn  context.CancelFunc
	lastActive  time.Time
	done        chan struct{}
}

func newSession(id string, asker Asker, historySize int, now time.Time) *Session {
	return &Session{
		id:          id,
		asker:       asker,
		historySize: historySize,
		state:       StateOpen,
		history:     make([]string, 0, historySize),
		lastActive:  now,
		done:        make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// MarkReady moves a freshly opened session to AwaitingTurn once the
// transport has acknowledged it.
func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen {
		s.state = StateAwaitingTurn
	}
}

// Accept numbers a received user turn. Call it in receive order, before the
// turn is queued, and pass the result to RunTurn.
func (s *Session) Accept() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
	s.queued++
	s.cancelled = false
	return s.accepted
}

// Withdraw releases an accepted turn that will never be run, e.g. because the
// transport queue was full.
func (s *Session) Withdraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued > 0 {
		s.queued--
	}
}

// Turn accepts text and answers it immediately.
func (s *Session) Turn(ctx context.Context, text string) (string, error) {
	return s.RunTurn(ctx, s.Accept(), text)
}

// RunTurn records text in the history and answers the turn numbered seq.
// The ask runs under a context that Interrupt and Close cancel. A turn covered
// by an interrupt returns ErrInterrupted, without asking if it had not started.
func (s *Session) RunTurn(ctx context.Context, seq uint64, text string) (string, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.queued > 0 {
		s.queued--
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if text == "" {
		s.mu.Unlock()
		return "", ErrEmptyTurn
	}
	s.history = append(s.history, text)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.lastActive = time.Now()
	if seq <= s.interrupted {
		s.mu.Unlock()
		return "", ErrInterrupted
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancelTurn = cancel
	s.state = StateProcessing
	s.mu.Unlock()

	answer := s.asker.Ask(turnCtx, text)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTurn = nil
	s.lastActive = time.Now()
	if s.state == StateClosed {
		return "", ErrClosed
	}
	s.state = StateAwaitingTurn
	if seq <= s.interrupted {
		return "", ErrInterrupted
	}
	if answer == nil {
		return "", nil
	}
	return answer.Answer, nil
}

// Interrupt drops the answers of every turn accepted so far and cancels the
// one in flight. It is safe to call at any time; with nothing pending it only
// sets the Cancelled flag.
func (s *Session) Interrupt() {
	s.mu.Lock()
	s.cancelled = true
	pending := s.cancelTurn != nil || s.queued > 0
	s.interrupted = s.accepted
	cancel := s.cancelTurn
	hook := s.onInterrupt
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if pending && hook != nil {
		hook()
	}
}

// Cancelled reports whether an interrupt arrived since the last accepted turn.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// History returns a copy of the recorded turns, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// close discards the session state and cancels any in-flight turn.
// Reports false if the session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.history = nil
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
	close(s.done)
	return true
}

// idleSince reports whether the session has had no turn in progress since before t.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateProcessing && s.lastActive.Before(t)
}
