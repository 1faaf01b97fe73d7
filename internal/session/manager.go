package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
	"github.com/itsdevcoffee/hyprvoice/internal/capture"
	"github.com/itsdevcoffee/hyprvoice/internal/config"
	"github.com/itsdevcoffee/hyprvoice/internal/output"
	"github.com/itsdevcoffee/hyprvoice/internal/protocol"
	"github.com/itsdevcoffee/hyprvoice/internal/statestore"
	"github.com/itsdevcoffee/hyprvoice/internal/transcribe"
)

// Transcriber converts a frozen audio buffer into a transcription result.
type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.Buffer) (transcribe.Result, error)
}

// Deps are the collaborators the manager drives. Publisher may be nil.
type Deps struct {
	Store     *statestore.Store
	Source    capture.Source
	Engine    Transcriber
	Output    output.Dispatcher
	Publisher *output.Publisher
	Logger    *slog.Logger
}

// Snapshot is a point-in-time view of the machine, safe to hand to callers.
type Snapshot struct {
	State     State
	SessionID string
	StartedAt time.Time
	Deadline  time.Time
	LastError string
}

// Manager is the session state machine. A single mutex guards every
// transition; the capture source and the decode goroutine never touch
// manager state directly.
type Manager struct {
	cfg        config.SessionConfig
	captureCfg config.CaptureConfig
	deps       Deps
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	clock    func() time.Time
	pidAlive func(pid int) bool

	mu       sync.Mutex
	state    State
	current  *Session
	watchdog *time.Timer
	lastErr  string
	wg       sync.WaitGroup

	meter           metric.Meter
	startedCounter  metric.Int64Counter
	timeoutCounter  metric.Int64Counter
	staleCounter    metric.Int64Counter
	failureCounter  metric.Int64Counter
	acceptanceHisto metric.Float64Histogram
}

func NewManager(parent context.Context, cfg config.SessionConfig, captureCfg config.CaptureConfig, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		cfg:        cfg,
		captureCfg: captureCfg,
		deps:       deps,
		log:        deps.Logger.With(slog.String("component", "session")),
		ctx:        ctx,
		cancel:     cancel,
		clock:      time.Now,
		pidAlive:   pidAlive,
		state:      StateIdle,
		meter:      otel.Meter("github.com/itsdevcoffee/hyprvoice/session"),
	}
	if err := m.initMetrics(); err != nil {
		m.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return m
}

func (m *Manager) initMetrics() error {
	if m.meter == nil {
		return nil
	}
	var err error
	if m.startedCounter, err = m.meter.Int64Counter("hyprvoice.sessions.started",
		metric.WithDescription("Recording sessions started")); err != nil {
		return err
	}
	if m.timeoutCounter, err = m.meter.Int64Counter("hyprvoice.sessions.timeouts",
		metric.WithDescription("Sessions stopped by the watchdog")); err != nil {
		return err
	}
	if m.staleCounter, err = m.meter.Int64Counter("hyprvoice.sessions.stale_recovered",
		metric.WithDescription("Stale session markers discarded")); err != nil {
		return err
	}
	if m.failureCounter, err = m.meter.Int64Counter("hyprvoice.sessions.decode_failures",
		metric.WithDescription("Transcriptions that ended in error")); err != nil {
		return err
	}
	if m.acceptanceHisto, err = m.meter.Float64Histogram("hyprvoice.decode.draft_acceptance",
		metric.WithDescription("Draft token acceptance rate per session")); err != nil {
		return err
	}
	return nil
}

// RequestStart begins a new session. From Recording it is reinterpreted as a
// stop (toggle semantics); from Transcribing it fails with ErrSessionBusy;
// from Error it heals the machine and starts fresh.
func (m *Manager) RequestStart(ctx context.Context, mode output.Mode) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recoverStaleLocked(ctx)

	switch m.state {
	case StateRecording:
		return m.stopLocked(ctx, statestore.EventStopped)
	case StateTranscribing:
		return m.snapshotLocked(), ErrSessionBusy
	case StateError:
		m.log.Info("clearing error state on new start", slog.String("last_error", m.lastErr))
		m.lastErr = ""
		m.state = StateIdle
	}

	return m.startLocked(ctx, mode)
}

// RequestStop ends the active recording and kicks off transcription. Valid
// only from Recording.
func (m *Manager) RequestStop(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return m.snapshotLocked(), ErrNoActiveSession
	}
	return m.stopLocked(ctx, statestore.EventStopped)
}

// Status reports the current machine state.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// RecoverStaleState discards a persisted session marker whose owner process
// is gone. Run at startup and before every start.
func (m *Manager) RecoverStaleState(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoverStaleLocked(ctx)
}

// Close stops the watchdog and waits for an in-flight decode to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	if m.state == StateRecording {
		m.deps.Source.Stop()
	}
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, LastError: m.lastErr}
	if m.current != nil {
		snap.SessionID = m.current.ID
		snap.StartedAt = m.current.StartedAt
		snap.Deadline = m.current.Deadline
	}
	return snap
}

func (m *Manager) recoverStaleLocked(ctx context.Context) {
	marker, err := m.deps.Store.ActiveMarker(ctx)
	if err != nil {
		m.log.Warn("failed to read session marker", slog.String("error", err.Error()))
		return
	}
	if marker == nil {
		return
	}
	if m.current != nil && marker.SessionID == m.current.ID {
		return
	}
	if marker.OwnerPID != os.Getpid() && m.pidAlive(marker.OwnerPID) {
		// Another live process owns it; not ours to discard.
		return
	}

	m.log.Info("discarding stale session marker",
		slog.String("session_id", marker.SessionID),
		slog.Int("owner_pid", marker.OwnerPID))
	if err := m.deps.Store.ClearMarker(ctx); err != nil {
		m.log.Warn("failed to clear stale marker", slog.String("error", err.Error()))
		return
	}
	_ = m.deps.Store.AppendEvent(ctx, statestore.Event{
		SessionID: marker.SessionID,
		Type:      statestore.EventStaleRecovered,
	})
	if m.staleCounter != nil {
		m.staleCounter.Add(ctx, 1)
	}
	if m.current == nil {
		m.state = StateIdle
	}
}

func (m *Manager) startLocked(ctx context.Context, mode output.Mode) (Snapshot, error) {
	marker, err := m.deps.Store.ActiveMarker(ctx)
	if err != nil {
		return m.snapshotLocked(), fmt.Errorf("read session marker: %w", err)
	}
	if marker != nil {
		// recoverStaleLocked already ran, so the owner is alive.
		return m.snapshotLocked(), ErrSessionBusy
	}

	now := m.clock()
	timeout := time.Duration(m.cfg.TimeoutSeconds) * time.Second
	sess := &Session{
		ID:        uuid.NewString(),
		OwnerPID:  os.Getpid(),
		StartedAt: now,
		Deadline:  now.Add(timeout),
		buffer:    audio.NewBuffer(m.captureCfg.SampleRate, m.captureCfg.MaxBufferSeconds),
		mode:      mode,
	}

	if err := m.deps.Store.PutMarker(ctx, statestore.Marker{
		SessionID: sess.ID,
		OwnerPID:  sess.OwnerPID,
		StartedAt: sess.StartedAt,
	}); err != nil {
		return m.snapshotLocked(), fmt.Errorf("persist session marker: %w", err)
	}

	buf := sess.buffer
	if err := m.deps.Source.Start(func(samples []float32) error {
		return buf.Append(samples)
	}); err != nil {
		_ = m.deps.Store.ClearMarker(ctx)
		return m.snapshotLocked(), fmt.Errorf("start capture: %w", err)
	}

	id := sess.ID
	m.watchdog = time.AfterFunc(timeout, func() { m.onTimeout(id) })
	m.current = sess
	m.state = StateRecording

	_ = m.deps.Store.AppendEvent(ctx, statestore.Event{SessionID: sess.ID, Type: statestore.EventStarted})
	if m.startedCounter != nil {
		m.startedCounter.Add(ctx, 1)
	}
	m.log.Info("recording started",
		slog.String("session_id", sess.ID),
		slog.Time("deadline", sess.Deadline))

	return m.snapshotLocked(), nil
}

// onTimeout is the watchdog path; it behaves exactly like an explicit stop.
func (m *Manager) onTimeout(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording || m.current == nil || m.current.ID != sessionID {
		return
	}
	m.log.Info("session timeout, stopping", slog.String("session_id", sessionID))
	if m.timeoutCounter != nil {
		m.timeoutCounter.Add(m.ctx, 1)
	}
	_, _ = m.stopLocked(m.ctx, statestore.EventTimeout)
}

func (m *Manager) stopLocked(ctx context.Context, reason string) (Snapshot, error) {
	sess := m.current
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.deps.Source.Stop()
	sess.buffer.Freeze()
	m.state = StateTranscribing

	_ = m.deps.Store.AppendEvent(ctx, statestore.Event{SessionID: sess.ID, Type: reason})
	m.log.Info("recording stopped, transcribing",
		slog.String("session_id", sess.ID),
		slog.String("reason", reason),
		slog.Duration("captured", sess.buffer.Duration()))

	m.wg.Add(1)
	go m.decode(sess)

	return m.snapshotLocked(), nil
}

// decode runs off the manager goroutine; it reacquires the mutex only to
// record the outcome.
func (m *Manager) decode(sess *Session) {
	defer m.wg.Done()

	timeout := time.Duration(m.cfg.DecodeTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	result, err := m.deps.Engine.Transcribe(ctx, sess.buffer)
	if err == nil {
		err = m.deliver(ctx, sess, result)
	}
	// The decode context may already be expired; bookkeeping still has to land.
	m.finish(context.Background(), sess, result, err)
}

func (m *Manager) deliver(ctx context.Context, sess *Session, result transcribe.Result) error {
	if err := m.deps.Output.Deliver(ctx, result.Text, sess.mode); err != nil {
		return fmt.Errorf("deliver transcript: %w", err)
	}
	if m.deps.Publisher != nil {
		t := protocol.Transcript{
			SessionID:       sess.ID,
			Text:            result.Text,
			TokenCount:      result.TokenCount,
			AcceptanceRate:  result.DraftAcceptanceRate,
			WallClockMillis: result.WallClock.Milliseconds(),
			Timestamp:       m.clock().UTC(),
		}
		if err := m.deps.Publisher.PublishTranscript(ctx, t); err != nil {
			m.log.Warn("failed to publish transcript", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (m *Manager) finish(ctx context.Context, sess *Session, result transcribe.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != sess.ID {
		return
	}
	if clearErr := m.deps.Store.ClearMarker(ctx); clearErr != nil {
		m.log.Warn("failed to clear session marker", slog.String("error", clearErr.Error()))
	}
	m.current = nil

	if err != nil {
		m.state = StateError
		m.lastErr = err.Error()
		_ = m.deps.Store.AppendEvent(ctx, statestore.Event{
			SessionID: sess.ID,
			Type:      statestore.EventError,
			Detail:    err.Error(),
		})
		if m.failureCounter != nil {
			m.failureCounter.Add(ctx, 1)
		}
		m.log.Error("transcription failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return
	}

	m.state = StateIdle
	m.lastErr = ""
	_ = m.deps.Store.AppendEvent(ctx, statestore.Event{
		SessionID: sess.ID,
		Type:      statestore.EventTranscribed,
		Detail:    output.Preview(result.Text),
	})
	if m.acceptanceHisto != nil {
		m.acceptanceHisto.Record(ctx, result.DraftAcceptanceRate)
	}
	m.log.Info("session complete",
		slog.String("session_id", sess.ID),
		slog.Int("tokens", result.TokenCount),
		slog.Float64("draft_acceptance", result.DraftAcceptanceRate),
		slog.Duration("decode_wall_clock", result.WallClock))
}

// pidAlive reports whether a process exists. Signal 0 probes without
// delivering; EPERM still means the process is there.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
