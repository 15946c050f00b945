package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of the camera session manager.
type State string

const (
	StateIdle          State = "idle"
	StateTransitioning State = "transitioning"
	StateActive        State = "active"
)

// Toggle control labels.
const (
	LabelStart = "Start Scan"
	LabelStop  = "Stop Scan"
)

const (
	msgUnsupported = "Your device does not support camera access."
	msgFailed      = "Cannot access camera. Check browser permissions and try again."
)

// Session is one camera acquisition paired with a scanning engine.
type Session struct {
	ID        string
	StartedAt time.Time
	stream    Stream
	engine    Engine
}

// Snapshot is a point-in-time view of the manager.
type Snapshot struct {
	State     State      `json:"state"`
	Label     string     `json:"label"`
	SessionID string     `json:"sessionId,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Manager owns the camera session lifecycle: at most one session exists,
// every exit path releases every acquired track, and toggles are rejected
// while a start or stop is pending.
type Manager struct {
	devices  MediaDevices
	sink     VideoSink
	engines  EngineFactory
	notifier Notifier
	codes    CodeAdder
	opts     Options
	request  Constraints

	mu         sync.Mutex
	state      State
	label      string
	session    *Session
	transition chan struct{}
	closed     bool
}

// Config bundles a Manager's collaborators.
type Config struct {
	Devices  MediaDevices
	Sink     VideoSink
	Engines  EngineFactory
	Notifier Notifier
	Codes    CodeAdder
	Options  Options
}

// NewManager creates an idle manager.
func NewManager(cfg Config) *Manager {
	facing := cfg.Options.PreferredCamera
	if facing == "" {
		facing = "environment"
	}
	return &Manager{
		devices:  cfg.Devices,
		sink:     cfg.Sink,
		engines:  cfg.Engines,
		notifier: cfg.Notifier,
		codes:    cfg.Codes,
		opts:     cfg.Options,
		request:  Constraints{Video: VideoConstraints{FacingMode: facing}, Audio: false},
		state:    StateIdle,
		label:    LabelStart,
	}
}

// Snapshot returns the current state and toggle label.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.state, Label: m.label}
	if m.session != nil {
		started := m.session.StartedAt
		snap.SessionID = m.session.ID
		snap.StartedAt = &started
	}
	return snap
}

// Toggle starts a session when idle and stops it when active. Camera
// failures are reported to the notifier and returned, and always leave the
// manager idle.
func (m *Manager) Toggle(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.state {
	case StateTransitioning:
		m.mu.Unlock()
		return ErrTransitionInProgress
	case StateActive:
		sess := m.beginTransitionLocked()
		m.mu.Unlock()

		m.teardown(ctx, sess)
		m.endTransition(nil)
		return nil
	default:
		m.beginTransitionLocked()
		m.mu.Unlock()

		sess, err := m.start(ctx)
		m.endTransition(sess)
		return err
	}
}

// Close stops any active session and refuses further toggles. A pending
// transition is waited for first.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for m.state == StateTransitioning {
		done := m.transition
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
	}
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	sess := m.beginTransitionLocked()
	m.mu.Unlock()

	m.teardown(ctx, sess)
	m.endTransition(nil)
	return nil
}

func (m *Manager) beginTransitionLocked() *Session {
	m.state = StateTransitioning
	m.transition = make(chan struct{})
	return m.session
}

func (m *Manager) endTransition(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = sess
	if sess != nil {
		m.state = StateActive
		m.label = LabelStop
	} else {
		m.state = StateIdle
		m.label = LabelStart
	}
	close(m.transition)
}

func (m *Manager) setLabel(label string) {
	m.mu.Lock()
	m.label = label
	m.mu.Unlock()
}

// start runs Idle -> Active. Any failure after the capability check rolls
// back everything acquired so far.
func (m *Manager) start(ctx context.Context) (*Session, error) {
	if m.devices == nil || !m.devices.Supported() {
		log.Printf("Camera start refused: %v", ErrCapabilityUnavailable)
		m.alert(NoticeCameraUnsupported, msgUnsupported)
		return nil, ErrCapabilityUnavailable
	}

	sess := &Session{ID: uuid.NewString(), StartedAt: time.Now().UTC()}

	stream, err := m.devices.GetUserMedia(ctx, m.request)
	if err != nil {
		return nil, m.rollback(ctx, sess, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err))
	}
	sess.stream = stream

	if err := m.sink.Bind(stream); err != nil {
		return nil, m.rollback(ctx, sess, fmt.Errorf("%w: binding preview: %w", ErrAcquisitionFailed, err))
	}
	m.setLabel(LabelStop)

	engine, err := m.engines.NewEngine(m.sink, m.handleResult, m.opts)
	if err != nil {
		return nil, m.rollback(ctx, sess, fmt.Errorf("%w: %w", ErrEngineStartFailed, err))
	}
	sess.engine = engine

	if err := engine.Start(ctx); err != nil {
		return nil, m.rollback(ctx, sess, fmt.Errorf("%w: %w", ErrEngineStartFailed, err))
	}

	log.Printf("Camera session %s started on stream %s", sess.ID, stream.ID())
	return sess, nil
}

func (m *Manager) rollback(ctx context.Context, sess *Session, cause error) error {
	log.Printf("Camera permission/start failed: %v", cause)
	if sess.engine != nil {
		safely("destroy engine", sess.engine.Destroy)
	}
	safely("clear preview", m.sink.Clear)
	stopTracks(sess.stream)
	m.setLabel(LabelStart)
	m.alert(NoticeCameraFailed, msgFailed)
	return cause
}

// teardown runs Active -> Idle. Every step runs even when an earlier one fails.
func (m *Manager) teardown(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}
	if sess.engine != nil {
		safely("stop engine", func() {
			if err := sess.engine.Stop(ctx); err != nil {
				log.Printf("Ignoring scanner stop error for session %s: %v", sess.ID, err)
			}
		})
		safely("destroy engine", sess.engine.Destroy)
	}
	safely("clear preview", m.sink.Clear)
	stopTracks(sess.stream)
	m.setLabel(LabelStart)
	log.Printf("Camera session %s stopped", sess.ID)
}

func (m *Manager) handleResult(r ScanResult) {
	text := Unwrap(r)
	if text == "" || m.codes == nil {
		return
	}
	m.codes.Add(context.Background(), text)
}

func (m *Manager) alert(kind NoticeKind, message string) {
	if m.notifier == nil {
		return
	}
	safely("alert", func() { m.notifier.Alert(Notice{Kind: kind, Message: message}) })
}

// stopTracks stops every track of stream. A nil stream is a no-op.
func stopTracks(stream Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		if track == nil {
			continue
		}
		safely("stop track", track.Stop)
	}
}

// safely runs a teardown step, logging instead of propagating a panic.
func safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Camera teardown step %q panicked: %v", step, r)
		}
	}()
	fn()
}
