// Package shell assembles one interactive terminal session from the
// parts the rest of the module provides: the priority queue, the
// coordination loop, the widget renderers, the input manager, and the
// optional remote steering server. Everything is injected through
// Options and owned by the Shell; two shells in one process share
// nothing.
//
// The shell is also the seam between the loop and the screen: it
// implements the loop's display contract and the remote server's
// controller contract, so processor output and remote steering both
// flow through the same rendering and persistence paths as local
// keystrokes.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/tern/pkg/config"
	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/history"
	"github.com/odvcencio/tern/pkg/logging"
	"github.com/odvcencio/tern/pkg/loop"
	"github.com/odvcencio/tern/pkg/message"
	"github.com/odvcencio/tern/pkg/queue"
	"github.com/odvcencio/tern/pkg/remote"
	"github.com/odvcencio/tern/pkg/telemetry"
	"github.com/odvcencio/tern/pkg/tokens"
	"github.com/odvcencio/tern/pkg/ui/backend"
	"github.com/odvcencio/tern/pkg/ui/input"
	"github.com/odvcencio/tern/pkg/ui/terminal"
	"github.com/odvcencio/tern/pkg/ui/widgets"
	"github.com/odvcencio/tern/pkg/workspace"
)

// Options configures a Shell. Backend and Processor are required; every
// other collaborator degrades to a quiet no-op when unset.
type Options struct {
	// Config supplies tunables. Nil selects the defaults.
	Config *config.Config

	// Backend is the terminal the session renders into.
	Backend backend.Terminal

	// BackendName labels the backend in snapshots and session records,
	// e.g. "ansi", "screen", or "sim". Defaults to the configured
	// backend choice.
	BackendName string

	// Processor handles user input pulled from the queue.
	Processor loop.Processor

	// Logger receives structured session events.
	Logger *logging.Logger

	// Telemetry receives lifecycle events for observers and the remote
	// event stream.
	Telemetry *telemetry.Hub

	// Tracer wraps message handling in spans when set.
	Tracer trace.Tracer

	// Store persists input recall and session transcripts.
	Store *history.Store

	// SessionID overrides the generated session identifier.
	SessionID string

	// Workspace describes the working directory. The zero value
	// triggers detection from the current directory.
	Workspace workspace.Info

	// ConfigPath enables hot reload of the safe settings when set.
	ConfigPath string
}

// Shell owns an interactive session end to end. Input events feed the
// queue, the coordination loop consumes it, and the widget renderers
// paint the outcome into disjoint regions of the backend.
type Shell struct {
	cfg       *config.Config
	term      backend.Terminal
	processor loop.Processor

	queue *queue.Queue
	loop  *loop.CoordinationLoop

	input        *input.Manager
	focus        *input.FocusScope
	releaseFocus func()

	modePane     *paneTarget
	streamPane   *paneTarget
	progressPane *paneTarget
	noticePane   *paneTarget

	modes    *widgets.ModeRenderer
	stream   *widgets.StreamRenderer
	progress *widgets.ProgressRenderer
	notices  *widgets.StatusRenderer

	logger *logging.Logger
	hub    *telemetry.Hub
	tracer trace.Tracer
	store  *history.Store

	sessionID   string
	backendName string
	ws          workspace.Info
	configPath  string
	startedAt   time.Time

	remote *remote.Server
	bridge *remote.Bridge

	// renderMu serializes raw terminal access across the goroutines
	// that paint: the loop consumer, the event pump, widget tickers,
	// and remote handlers.
	renderMu sync.Mutex

	mu           sync.Mutex
	inputRow     int
	infoRow      int
	prompt       string
	messageCount int
	totalTokens  int
	onCancel     []func()

	cancelRequested atomic.Bool

	shutdownOnce sync.Once
	destroyOnce  sync.Once
}

// The shell is both the loop's display and the remote server's
// controller.
var (
	_ loop.Display      = (*Shell)(nil)
	_ remote.Controller = (*Shell)(nil)
)

// New wires a Shell from its collaborators. The terminal is not touched
// until Run.
func New(opts Options) (*Shell, error) {
	if opts.Backend == nil {
		return nil, terrors.New(terrors.ErrCodeInitialization, "shell requires a terminal backend")
	}
	if opts.Processor == nil {
		return nil, terrors.New(terrors.ErrCodeInitialization, "shell requires a processor")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Shell{
		cfg:         cfg,
		term:        opts.Backend,
		processor:   opts.Processor,
		queue:       queue.New(),
		logger:      opts.Logger,
		hub:         opts.Telemetry,
		tracer:      opts.Tracer,
		store:       opts.Store,
		sessionID:   opts.SessionID,
		backendName: opts.BackendName,
		ws:          opts.Workspace,
		configPath:  opts.ConfigPath,
	}
	if s.sessionID == "" {
		s.sessionID = ulid.Make().String()
	}
	if s.backendName == "" {
		s.backendName = cfg.Terminal.Backend
	}
	if s.ws == (workspace.Info{}) {
		s.ws = workspace.Detect(".")
	}

	s.modePane = newPaneTarget(&s.renderMu, s.term.Flush)
	s.streamPane = newPaneTarget(&s.renderMu, s.term.Flush)
	s.progressPane = newPaneTarget(&s.renderMu, s.term.Flush)
	s.noticePane = newPaneTarget(&s.renderMu, s.term.Flush)

	s.modes = widgets.NewModeRenderer(s.modePane)
	s.stream = widgets.NewStreamRenderer(s.streamPane)
	s.progress = widgets.NewProgressRenderer(s.progressPane)
	s.progress.SetFrames(widgets.FrameSet(cfg.Progress.Frames))
	s.progress.SetTickInterval(cfg.Progress.TickInterval())
	s.progress.SetRevertDelay(cfg.Progress.RevertDelay())
	s.notices = widgets.NewStatusRenderer(s.noticePane)

	s.focus = input.NewFocusScope()
	s.input = input.NewManagerWithHistory(cfg.Input.HistoryLimit)
	s.releaseFocus = s.focus.Acquire(s.input)
	s.wireInput()

	s.modes.OnChange(func(mode widgets.Mode) {
		s.publish(telemetry.EventModeChanged, "", map[string]any{"mode": mode.String()})
		s.logInfo(logging.CategoryShell, "mode_changed", "interaction mode changed",
			map[string]any{"mode": mode.String()})
		s.renderInput()
	})

	s.stream.OnComplete(s.recordResponse)

	s.loop = loop.New(s.queue, opts.Processor, s)
	if opts.Logger != nil {
		s.loop.SetLogger(opts.Logger)
	}
	if opts.Telemetry != nil {
		s.loop.SetTelemetry(opts.Telemetry)
	}
	if opts.Tracer != nil {
		s.loop.SetTracer(opts.Tracer)
	}

	if cfg.Remote.Enabled {
		s.remote = remote.NewServer(remote.Config{
			Bind:          cfg.Remote.Bind,
			Token:         cfg.Remote.Token,
			RequireToken:  cfg.Remote.RequireToken,
			AllowExternal: cfg.Remote.AllowExternal,
			PublicMetrics: cfg.Remote.PublicMetrics,
		}, s, opts.Telemetry)
		if opts.Logger != nil {
			s.remote.SetLogger(opts.Logger)
		}
	}

	return s, nil
}

// SessionID returns the session identifier.
func (s *Shell) SessionID() string { return s.sessionID }

// Queue exposes the session queue so hosts can feed messages directly,
// e.g. processor chunks pushed from a worker goroutine.
func (s *Shell) Queue() *queue.Queue { return s.queue }

// Mode returns the current interaction mode.
func (s *Shell) Mode() widgets.Mode { return s.modes.Mode() }

// Run drives the session until the queue drains after Shutdown, the
// context is cancelled, or the loop fails. It owns the backend
// lifecycle: the terminal is acquired on entry and restored on every
// exit path.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.term.Init(); err != nil {
		return err
	}
	defer s.destroy()

	if s.cfg.Terminal.Mouse {
		if m, ok := s.term.(interface{ EnableMouse() }); ok {
			m.EnableMouse()
		}
	}

	s.startedAt = time.Now()
	w, h := s.term.Size()
	s.applyLayout(w, h)
	s.openSession()
	s.Redraw()

	s.publish(telemetry.EventShellStarted, "", map[string]any{
		"backend":   s.backendName,
		"workspace": s.ws.Label(),
	})
	s.logInfo(logging.CategoryShell, "session_started", "interactive session started", map[string]any{
		"backend":   s.backendName,
		"workspace": s.ws.Label(),
	})

	if err := s.loop.Start(ctx); err != nil {
		return err
	}

	if watcher := s.startConfigWatcher(); watcher != nil {
		defer watcher.Close()
	}
	s.startBridge()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	// The loop finishing, for any reason, ends the session.
	g.Go(func() error {
		defer stop()
		return s.loop.Wait(gctx)
	})

	// Teardown trigger: once the run context ends, close the queue so
	// a still-pulling loop drains out, and destroy the backend so the
	// event pump unblocks.
	g.Go(func() error {
		<-gctx.Done()
		s.queue.Done()
		s.term.Destroy()
		return nil
	})

	g.Go(func() error {
		s.pumpEvents(gctx)
		return nil
	})

	if s.remote != nil {
		g.Go(func() error {
			if err := s.remote.Start(gctx); err != nil {
				s.logError(logging.CategoryRemote, "server_failed", err.Error(), nil)
				s.DisplayMessage("remote steering unavailable: "+err.Error(), "warning")
			}
			// A remote failure never takes down the session.
			return nil
		})
	}

	err := g.Wait()
	s.closeSession()
	s.publish(telemetry.EventShellStopped, "", nil)
	s.logInfo(logging.CategoryShell, "session_stopped", "interactive session stopped", nil)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown requests the canonical exit sequence: a high-priority
// shutdown control that jumps ahead of queued work, then closing the
// queue so the loop stops after handling it. Safe to call repeatedly
// and from any goroutine.
func (s *Shell) Shutdown() {
	s.shutdownOnce.Do(func() {
		_ = s.queue.Push(message.NewShutdown())
		s.queue.Done()
	})
}

// CancelRequested reports the advisory cancel flag set by Escape or
// Ctrl+C. It resets when the next response begins.
func (s *Shell) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// OnCancelRequest registers an observer fired when the user requests
// cancellation of the in-flight message.
func (s *Shell) OnCancelRequest(fn func()) {
	s.mu.Lock()
	s.onCancel = append(s.onCancel, fn)
	s.mu.Unlock()
}

// OnModeChange registers an observer for interaction mode changes.
func (s *Shell) OnModeChange(fn func(widgets.Mode)) {
	s.modes.OnChange(fn)
}

func (s *Shell) wireInput() {
	s.input.OnKeypress(func(ev terminal.KeyEvent) {
		if ev.Key == terminal.KeyCtrlL {
			s.ClearScreen()
			return
		}
		s.renderInput()
	})
	s.input.OnInput(func(text string) {
		if err := s.submit(text, "keyboard"); err != nil {
			s.DisplayMessage(err.Error(), "error")
		}
	})
	s.input.OnShiftTab(func() {
		s.modes.Cycle()
	})
	s.input.OnEscape(s.requestCancel)
	s.input.OnCtrlC(s.requestCancel)
	s.input.OnCtrlD(s.Shutdown)
	s.input.SetPanicHandler(func(recovered any) {
		s.logError(logging.CategoryInput, "callback_panic",
			fmt.Sprintf("input callback panicked: %v", recovered), nil)
	})
}

// submit queues one line of user input. Empty lines are dropped
// silently; a closed queue reports the session as shutting down. The
// line is recorded before it is queued so the transcript always shows
// the input ahead of its response.
func (s *Shell) submit(text, source string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	s.recordInput(trimmed)
	msg := message.NewUserInput(trimmed)
	if err := s.queue.Push(msg); err != nil {
		return terrors.Wrap(err, terrors.ErrCodeQueueDone, "session is shutting down")
	}
	s.publish(telemetry.EventInputSubmitted, msg.ID, map[string]any{
		"source": source,
		"length": len(trimmed),
	})
	return nil
}

// requestCancel flags cancellation and interrupts the in-flight
// processor call. The flag is advisory; the context cancellation is
// what actually stops work.
func (s *Shell) requestCancel() {
	s.cancelRequested.Store(true)
	s.loop.CancelActive()

	s.mu.Lock()
	observers := append([]func(){}, s.onCancel...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// openSession creates the persistent session record and seeds input
// recall from earlier sessions. Persistence failures degrade to log
// lines; the session runs regardless.
func (s *Shell) openSession() {
	if s.store == nil {
		return
	}
	now := time.Now()
	session := &history.Session{
		ID:         s.sessionID,
		GitRepo:    s.ws.Repo,
		GitBranch:  s.ws.Branch,
		Backend:    s.backendName,
		CreatedAt:  now,
		LastActive: now,
		Status:     history.SessionStatusActive,
	}
	if err := s.store.CreateSession(session); err != nil {
		s.logWarn(logging.CategoryHistory, "session_create_failed", err.Error(), nil)
		return
	}
	if lines, err := s.store.RecentInputs(s.cfg.Input.HistoryLimit); err == nil {
		s.input.SeedHistory(lines)
	} else {
		s.logWarn(logging.CategoryHistory, "history_seed_failed", err.Error(), nil)
	}
}

func (s *Shell) closeSession() {
	if s.store == nil {
		return
	}
	if err := s.store.SetSessionStatus(s.sessionID, history.SessionStatusCompleted); err != nil {
		s.logWarn(logging.CategoryHistory, "session_close_failed", err.Error(), nil)
	}
}

// recordInput persists a submitted line and bumps the session counters.
func (s *Shell) recordInput(text string) {
	count := tokens.Count(text)
	s.mu.Lock()
	s.messageCount++
	s.totalTokens += count
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendInput(s.sessionID, text); err != nil {
			s.logWarn(logging.CategoryHistory, "input_persist_failed", err.Error(), nil)
		}
		if err := s.store.AppendTranscript(s.sessionID, history.EntryInput, text, count); err != nil {
			s.logWarn(logging.CategoryHistory, "transcript_persist_failed", err.Error(), nil)
		}
		if err := s.store.AddSessionUsage(s.sessionID, 1, count); err != nil {
			s.logWarn(logging.CategoryHistory, "usage_persist_failed", err.Error(), nil)
		}
	}

	s.renderInfoLine()
	s.renderInput()
}

// recordResponse persists a completed response and bumps the session
// counters. Fired by the stream renderer's completion callback so
// loop-driven and host-driven streams both land in the transcript.
// Empty streams, such as a processor that answers entirely through
// out-of-band chunks, are not recorded.
func (s *Shell) recordResponse(full string) {
	if strings.TrimSpace(full) == "" {
		return
	}
	count := tokens.Count(full)
	s.mu.Lock()
	s.messageCount++
	s.totalTokens += count
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendTranscript(s.sessionID, history.EntryResponse, full, count); err != nil {
			s.logWarn(logging.CategoryHistory, "transcript_persist_failed", err.Error(), nil)
		}
		if err := s.store.AddSessionUsage(s.sessionID, 1, count); err != nil {
			s.logWarn(logging.CategoryHistory, "usage_persist_failed", err.Error(), nil)
		}
	}

	s.renderInfoLine()
	s.renderInput()
}

func (s *Shell) recordStatus(text string) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendTranscript(s.sessionID, history.EntryStatus, text, 0); err != nil {
		s.logWarn(logging.CategoryHistory, "transcript_persist_failed", err.Error(), nil)
	}
}

// startConfigWatcher begins hot reload when a config path was given.
func (s *Shell) startConfigWatcher() *config.Watcher {
	if s.configPath == "" {
		return nil
	}
	watcher, err := config.NewWatcher(s.configPath)
	if err != nil {
		s.logWarn(logging.CategoryConfig, "watch_failed", err.Error(), nil)
		return nil
	}
	watcher.OnReload(s.applyConfig)
	watcher.OnError(func(err error) {
		s.logWarn(logging.CategoryConfig, "reload_failed", err.Error(), nil)
	})
	watcher.Start()
	return watcher
}

// applyConfig adopts the settings that are safe to change mid-session.
// Backend choice, history database, and remote bind address stay fixed
// until restart.
func (s *Shell) applyConfig(next *config.Config) {
	s.progress.SetFrames(widgets.FrameSet(next.Progress.Frames))
	s.progress.SetTickInterval(next.Progress.TickInterval())
	s.progress.SetRevertDelay(next.Progress.RevertDelay())
	if s.logger != nil {
		s.logger.SetMinLevel(logging.Level(next.Logging.Level))
	}
	s.DisplayMessage("configuration reloaded", "info")
	s.logInfo(logging.CategoryConfig, "reloaded", "configuration reloaded", nil)
}

// startBridge attaches the NATS forwarder to the remote event hub. The
// bridge is optional plumbing: any failure here logs and moves on.
func (s *Shell) startBridge() {
	if s.remote == nil || !s.cfg.Remote.NATS.Enabled {
		return
	}
	bridge, err := remote.NewBridge(s.cfg.Remote.NATS.URL, s.cfg.Remote.NATS.Subject, s)
	if err != nil {
		s.logWarn(logging.CategoryRemote, "nats_unavailable", err.Error(), nil)
		return
	}
	if err := bridge.Start(); err != nil {
		s.logWarn(logging.CategoryRemote, "nats_subscribe_failed", err.Error(), nil)
		bridge.Close()
		return
	}
	s.remote.Hub().AddForwarder(bridge)
	s.bridge = bridge
	s.logInfo(logging.CategoryRemote, "nats_bridge_started", "NATS bridge attached",
		map[string]any{"subject": s.cfg.Remote.NATS.Subject})
}

// destroy restores the terminal and releases owned resources. Safe to
// call more than once.
func (s *Shell) destroy() {
	s.destroyOnce.Do(func() {
		if s.bridge != nil {
			s.bridge.Close()
		}
		s.progress.Destroy()
		s.releaseFocus()
	})
	s.term.Destroy()
}

func (s *Shell) publish(eventType telemetry.EventType, messageID string, data map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(telemetry.Event{
		Type:      eventType,
		SessionID: s.sessionID,
		MessageID: messageID,
		Data:      data,
	})
}

func (s *Shell) logInfo(category logging.Category, eventType, msg string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Info(category, eventType, msg, details)
}

func (s *Shell) logWarn(category logging.Category, eventType, msg string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Warn(category, eventType, msg, details)
}

func (s *Shell) logError(category logging.Category, eventType, msg string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Error(category, eventType, msg, details)
}
