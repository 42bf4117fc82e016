// Package live runs one realtime voice session against a speech-to-speech
// backend: it captures the microphone, streams it upstream, schedules the
// model's audio for gapless playback, forwards transcripts and dispatches the
// model's tool calls to a [tools.Executor].
//
// A [Session] is single use. It moves through
//
//	idle → connecting → active → closing → closed
//
// or ends in errored, and never leaves closed or errored. Construct a new
// Session to retry.
//
// Internally one event loop goroutine consumes the transport's inbound
// messages, tool completions and tool progress notes in order, and one writer
// goroutine drains the outbound channel shared by the microphone pump and the
// tool results.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/tools"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

var (
	// ErrMissingCredential is returned by Connect when no API key is set.
	ErrMissingCredential = errors.New("live: missing API credential")

	// ErrMicrophoneRevoked is reported when capture ends while active.
	ErrMicrophoneRevoked = errors.New("live: microphone access revoked")

	// ErrAlreadyStarted is returned by a second Connect.
	ErrAlreadyStarted = errors.New("live: session already started")

	// ErrDisconnected is returned by Connect when the session was stopped
	// before or while connecting.
	ErrDisconnected = errors.New("live: session disconnected")
)

// outbound is one message for the writer. Exactly one field is set.
type outbound struct {
	audio  *s2s.MediaChunk
	result *s2s.ToolResult
}

type toolOutcome struct {
	call   s2s.ToolCall
	result map[string]any
	err    error
}

// Session is one realtime voice conversation. All methods are safe for
// concurrent use.
type Session struct {
	id      string
	cfg     Config
	cb      Callbacks
	tr      s2s.Transport
	dev     audio.Device
	exec    tools.Executor
	log     *slog.Logger
	metrics *observe.Metrics
	loc     *time.Location

	out      chan outbound
	toolDone chan toolOutcome
	notes    chan tools.Note
	micLost  chan struct{}
	done     chan struct{}

	releaseOnce sync.Once

	mu            sync.Mutex
	state         State
	stopping      bool
	failing       bool
	connectCancel context.CancelFunc
	runCancel     context.CancelFunc
	pumpCancel    context.CancelFunc
	pumpDone      chan struct{}
	mic           audio.Microphone
	player        audio.Player
	conn          s2s.Conn
	next          int64 // playback cursor, in output frames
}

// New returns an idle session. Nothing is opened until [Session.Connect].
func New(cfg Config, deps Deps, cb Callbacks) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		cb:       cb,
		tr:       deps.Transport,
		dev:      deps.Device,
		exec:     deps.Executor,
		log:      deps.Logger,
		metrics:  deps.Metrics,
		out:      make(chan outbound),
		toolDone: make(chan toolOutcome),
		notes:    make(chan tools.Note),
		micLost:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.exec == nil {
		s.exec = noopExecutor{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(observe.CallIDKey, s.id)
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		s.log.Warn("live: unknown time zone, using UTC", "time_zone", cfg.TimeZone, "err", err)
		loc = time.UTC
	}
	s.loc = loc
	return s
}

// ID identifies the session in logs, spans and tool contexts.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches closed or errored.
func (s *Session) Done() <-chan struct{} { return s.done }

// PlaybackCursor returns the clock position at which the next inbound audio
// chunk will start if it arrives before the player catches up.
func (s *Session) PlaybackCursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.FramesToDuration(s.next, s.cfg.OutputSampleRate)
}

// ── Connect ─────────────────────────────────────────────────────────────────

// Connect opens the player, then the microphone and the transport
// concurrently, and starts streaming. It returns once the session is active.
//
// Any failure releases what was acquired, reports through OnError and leaves
// the session errored. ctx bounds the connect only; the session keeps
// running after ctx is done until Disconnect or the transport ends.
func (s *Session) Connect(ctx context.Context) error {
	ctx = observe.WithCallID(ctx, s.id)
	switch st := s.State(); {
	case st.Terminal():
		return ErrDisconnected
	case st != StateIdle:
		return ErrAlreadyStarted
	}

	if s.cfg.Credential == "" {
		s.fail(ctx, ErrMissingCredential)
		return ErrMissingCredential
	}
	if !s.transition(ctx, StateConnecting) {
		return ErrDisconnected
	}

	start := time.Now()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrDisconnected
	}
	s.connectCancel = cancel
	s.mu.Unlock()

	player, err := s.dev.OpenPlayer(s.cfg.OutputSampleRate)
	if err != nil {
		return s.connectFailed(ctx, fmt.Errorf("live: open player: %w", err))
	}

	instructions := AugmentInstructions(s.cfg.Instructions, s.cfg.Now(), s.loc)

	var (
		mic  audio.Microphone
		conn s2s.Conn
	)
	g, gctx := errgroup.WithContext(connCtx)
	g.Go(func() error {
		m, err := s.dev.OpenMicrophone(gctx, s.cfg.InputSampleRate)
		if err != nil {
			return fmt.Errorf("live: open microphone: %w", err)
		}
		mic = m
		return nil
	})
	g.Go(func() error {
		c, err := s.tr.Connect(gctx, s2s.SessionConfig{
			APIKey:       s.cfg.Credential,
			Model:        s.cfg.Model,
			Voice:        s.cfg.Voice,
			Instructions: instructions,
			Tools:        s.cfg.Tools,
		})
		if err != nil {
			return fmt.Errorf("live: connect transport: %w", err)
		}
		conn = c
		return nil
	})
	err = g.Wait()

	closeAcquired := func() {
		if mic != nil {
			_ = mic.Close()
		}
		if conn != nil {
			_ = conn.Close()
		}
		if !player.Closed() {
			_ = player.Close()
		}
	}
	if err != nil {
		closeAcquired()
		return s.connectFailed(ctx, err)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		closeAcquired()
		return ErrDisconnected
	}
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))
	pumpCtx, pumpCancel := context.WithCancel(runCtx)
	pumpDone := make(chan struct{})
	s.mic, s.player, s.conn = mic, player, conn
	s.runCancel, s.pumpCancel, s.pumpDone = runCancel, pumpCancel, pumpDone
	s.connectCancel = nil
	s.mu.Unlock()

	// The pump starts before any callback can call Disconnect, since release
	// waits for pumpDone. The loop starts after the active callbacks so
	// inbound events follow them.
	go s.pump(pumpCtx, mic, pumpDone)
	go s.writer(runCtx, conn)
	active := s.transition(ctx, StateActive)
	if active {
		s.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
		s.emit(LogInfo, "Session Connected", nil)
	}
	go s.loop(runCtx, conn, player)
	if !active {
		return ErrDisconnected
	}
	s.log.Info("live: session connected",
		"transport", s.cfg.TransportName,
		"voice", s.cfg.Voice,
		"tools", len(s.cfg.Tools),
		"duration", time.Since(start),
	)
	return nil
}

// connectFailed finishes a failed Connect. A failure caused by Disconnect is
// reported as ErrDisconnected without OnError.
func (s *Session) connectFailed(ctx context.Context, err error) error {
	if s.isStopping() {
		return ErrDisconnected
	}
	s.fail(ctx, err)
	return err
}

// ── Disconnect ──────────────────────────────────────────────────────────────

// Disconnect stops the session from any state. It closes the microphone,
// stops the pump, closes the player unless it is already closed, closes the
// transport and resets the playback cursor, in that order. It is idempotent
// and does not wait for in-flight tool calls; their results are dropped.
// Called while the session is failing, for instance from OnError, it only
// releases resources and the session still ends errored.
func (s *Session) Disconnect() {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		// The failure path owns the final state.
		s.release()
		return
	}
	ctx := context.Background()
	s.transition(ctx, StateClosing)
	s.release()
	s.transition(ctx, StateClosed)
}

// release frees every resource exactly once. Concurrent callers block until
// the first call has finished.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		connectCancel := s.connectCancel
		mic, player, conn := s.mic, s.player, s.conn
		pumpCancel, pumpDone, runCancel := s.pumpCancel, s.pumpDone, s.runCancel
		s.mu.Unlock()

		if connectCancel != nil {
			connectCancel()
		}
		if mic != nil {
			if err := mic.Close(); err != nil {
				s.log.Warn("live: close microphone", "err", err)
			}
		}
		if pumpCancel != nil {
			pumpCancel()
			<-pumpDone
		}
		if player != nil && !player.Closed() {
			if err := player.Close(); err != nil {
				s.log.Warn("live: close player", "err", err)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.log.Warn("live: close transport", "err", err)
			}
		}

		s.mu.Lock()
		s.mic, s.player, s.conn = nil, nil, nil
		s.next = 0
		s.mu.Unlock()

		if runCancel != nil {
			runCancel()
		}
	})
}

// ── State ───────────────────────────────────────────────────────────────────

// transition moves to state to if the move is legal and reports whether it
// happened. OnStateChange fires outside the lock.
func (s *Session) transition(ctx context.Context, to State) bool {
	s.mu.Lock()
	from := s.state
	if !slices.Contains(transitions[from], to) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.metrics.RecordStateTransition(ctx, to.String())
	switch {
	case to == StateActive:
		s.metrics.ActiveSessions.Add(ctx, 1)
	case from == StateActive:
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	s.log.Debug("live: state change", "from", from.String(), "to", to.String())
	s.cb.stateChange(to)
	if to.Terminal() {
		close(s.done)
	}
	return true
}

// fail reports err, tears the session down and marks it errored.
func (s *Session) fail(ctx context.Context, err error) {
	s.mu.Lock()
	s.failing = true
	s.mu.Unlock()

	msg := err.Error()
	s.log.Error("live: session error", "err", err)
	s.cb.error(msg)
	s.emit(LogError, "Session Error: "+msg, nil)
	s.release()
	s.transition(ctx, StateErrored)
}

func (s *Session) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Session) emit(typ LogType, msg string, data any) {
	s.cb.log(LogEntry{Time: s.cfg.Now(), Type: typ, Message: msg, Data: data})
}

// ── Goroutines ──────────────────────────────────────────────────────────────

// enqueue hands o to the writer. It reports false when ctx ends first.
func (s *Session) enqueue(ctx context.Context, o outbound) bool {
	select {
	case s.out <- o:
		return true
	case <-ctx.Done():
		return false
	}
}

// writer is the only goroutine that sends on conn.
func (s *Session) writer(ctx context.Context, conn s2s.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.out:
			var err error
			if o.audio != nil {
				err = conn.SendAudio(ctx, *o.audio)
				if err == nil {
					s.metrics.RecordAudioChunk(ctx, "in")
				}
			} else {
				err = conn.SendToolResult(ctx, *o.result)
			}
			// Sends racing a teardown are dropped silently.
			if err != nil && ctx.Err() == nil && !s.isStopping() {
				s.log.Warn("live: send failed", "err", err)
			}
		}
	}
}

// pump converts captured frames to PCM16 at the transport rate and queues
// them for sending, one frame at a time.
func (s *Session) pump(ctx context.Context, mic audio.Microphone, done chan struct{}) {
	defer close(done)

	rate := mic.SampleRate()
	if rate <= 0 {
		rate = s.cfg.InputSampleRate
	}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: s.cfg.TransportSampleRate, Channels: 1}}
	mime := audio.PCMMIMEType(s.cfg.TransportSampleRate)
	frames := mic.Frames()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if !s.isStopping() {
					close(s.micLost)
				}
				return
			}
			frame := conv.Convert(audio.AudioFrame{
				Data:       audio.Int16sToBytes(audio.FloatTo16BitPCM(f)),
				SampleRate: rate,
				Channels:   1,
			})
			if len(frame.Data) == 0 {
				continue
			}
			chunk := s2s.MediaChunk{MIMEType: mime, Data: audio.BinaryToBase64(frame.Data)}
			if !s.enqueue(ctx, outbound{audio: &chunk}) {
				return
			}
		}
	}
}

// loop processes inbound messages, tool completions and tool notes in order.
func (s *Session) loop(ctx context.Context, conn s2s.Conn, player audio.Player) {
	msgs := conn.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				s.transportEnded(ctx, conn)
				return
			}
			s.handle(ctx, msg, player)
		case o := <-s.toolDone:
			s.finishTool(ctx, o)
		case n := <-s.notes:
			s.emit(LogWebhook, n.Message, n.Data)
		case <-s.micLost:
			s.fail(ctx, ErrMicrophoneRevoked)
			return
		}
	}
}

func (s *Session) transportEnded(ctx context.Context, conn s2s.Conn) {
	if s.isStopping() {
		return
	}
	if err := conn.Err(); err != nil {
		s.metrics.RecordTransportError(ctx, s.cfg.TransportName)
		s.fail(ctx, fmt.Errorf("live: transport: %w", err))
		return
	}
	s.log.Info("live: session closed by remote")
	s.emit(LogInfo, "Session Closed", nil)
	s.transition(ctx, StateClosing)
	s.release()
	s.transition(ctx, StateClosed)
}

func (s *Session) handle(ctx context.Context, msg s2s.ServerMessage, player audio.Player) {
	for _, chunk := range msg.Audio {
		s.play(ctx, chunk, player)
	}
	if msg.InputTranscript != "" {
		s.cb.transcript(RoleUser, msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		s.cb.transcript(RoleModel, msg.OutputTranscript)
	}
	for _, call := range msg.ToolCalls {
		s.dispatch(ctx, call)
	}
	if msg.Interrupted {
		s.log.Debug("live: model interrupted")
		s.emit(LogInfo, "Model Interrupted", nil)
	}
	if msg.TurnComplete || msg.Interrupted {
		s.cb.turnComplete(msg.Interrupted)
	}
}

// play decodes chunk and schedules it at max(player clock, cursor), then
// advances the cursor by the chunk's length. The cursor counts whole frames
// so consecutive chunks never overlap or leave a gap.
func (s *Session) play(ctx context.Context, chunk s2s.AudioChunk, player audio.Player) {
	pcm, err := audio.Base64ToBinary(chunk.Data)
	if err != nil {
		s.log.Error("live: malformed inbound audio, chunk skipped", "err", err)
		return
	}
	samples := audio.PCM16ToFloat32(audio.BytesToInt16s(pcm))
	if len(samples) == 0 {
		return
	}
	s.cb.audio(samples)

	rate := s.cfg.OutputSampleRate
	s.mu.Lock()
	at := max(audio.DurationToFrames(player.Now(), rate), s.next)
	s.next = at + int64(len(samples))
	s.mu.Unlock()

	if err := player.Schedule(samples, audio.FramesToDuration(at, rate)); err != nil {
		s.log.Debug("live: schedule playback", "err", err)
		return
	}
	s.metrics.RecordAudioChunk(ctx, "out")
}

func (s *Session) dispatch(ctx context.Context, call s2s.ToolCall) {
	s.log.Info("live: tool call", "tool", call.Name, "id", call.ID)
	s.cb.toolUse(call.Name, ToolStarted, nil)
	s.emit(LogToolRequest, "INVOKING TOOL: "+call.Name, call.Args)
	go s.runTool(ctx, call)
}

// runTool executes call and hands the outcome to the loop. Panics in the
// executor become errors. Outcomes arriving after teardown are dropped.
func (s *Session) runTool(ctx context.Context, call s2s.ToolCall) {
	out := toolOutcome{call: call}
	func() {
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
			}
		}()
		tctx := tools.WithNotifier(ctx, func(n tools.Note) {
			select {
			case s.notes <- n:
			case <-ctx.Done():
			}
		})
		out.result, out.err = s.exec.Execute(tctx, call.Name, call.Args)
	}()

	select {
	case s.toolDone <- out:
	case <-ctx.Done():
		s.log.Debug("live: dropping late tool result", "tool", call.Name, "id", call.ID)
	}
}

func (s *Session) finishTool(ctx context.Context, o toolOutcome) {
	result := o.result
	if o.err != nil {
		s.log.Warn("live: tool failed", "tool", o.call.Name, "err", o.err)
		s.emit(LogError, "Tool Execution Failed: "+o.err.Error(), nil)
		result = map[string]any{"error": o.err.Error()}
	}
	if result == nil {
		result = map[string]any{}
	}
	s.cb.toolUse(o.call.Name, ToolFinished, result)
	s.emit(LogToolResponse, "Tool "+o.call.Name+" Finished", result)
	s.enqueue(ctx, outbound{result: &s2s.ToolResult{
		ID:       o.call.ID,
		Name:     o.call.Name,
		Response: result,
	}})
}
