package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teslashibe/voicecore/pkg/audioio"
	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/metrics"
	"github.com/teslashibe/voicecore/pkg/realtime"
	"github.com/teslashibe/voicecore/pkg/session"
)

const realtimePipelineName = "realtime"

// RealtimeDeps are the collaborators of a RealtimePipeline. Audio may be nil.
type RealtimeDeps struct {
	Dialer realtime.Dialer
	Source audioio.Source
	Sink   audioio.Sink
	Audio  AudioSession
	Logger *slog.Logger
}

// RealtimePipeline streams microphone audio to the realtime service and
// plays its audio replies, with server-side turn detection.
type RealtimePipeline struct {
	*session.Streams

	dialer realtime.Dialer
	source audioio.Source
	player *audioio.Player
	audio  AudioSession
	cfg    Config
	logger *slog.Logger

	latency *latencyTracker

	mu        sync.Mutex
	life      lifecycle
	conn      realtime.Conn
	assistant strings.Builder
}

// NewRealtimePipeline creates an idle pipeline.
func NewRealtimePipeline(deps RealtimeDeps, opts ...Option) (*RealtimePipeline, error) {
	if deps.Dialer == nil || deps.Source == nil || deps.Sink == nil {
		return nil, fmt.Errorf("%w: dialer, source and sink are required", ErrMissingDep)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if deps.Audio == nil {
		deps.Audio = noAudioSession{}
	}
	log := logger(deps.Logger, "voice.realtime")
	return &RealtimePipeline{
		Streams: session.NewStreams(realtimePipelineName, log),
		dialer:  deps.Dialer,
		source:  deps.Source,
		player:  audioio.NewPlayer(deps.Sink, log),
		audio:   deps.Audio,
		cfg:     cfg,
		logger:  log,
		latency: newLatencyTracker(realtimePipelineName),
	}, nil
}

// Start configures duplex audio, connects, sends the session
// configuration and starts capture and playback. Failures before the
// session is running are returned and also reported as an error state.
// The pipeline lock is not held while connecting, so Stop can cancel a
// dial in progress.
func (p *RealtimePipeline) Start(ctx context.Context, systemPrompt string) error {
	p.mu.Lock()
	runCtx, done, err := p.life.begin(ctx)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	cancel := p.life.cancel
	p.conn = nil
	p.mu.Unlock()

	ctx, span := tracer.Start(runCtx, "voice.realtime.start")
	defer span.End()

	abort := func(err error) error {
		defer close(done)
		cancel()
		if p.stopped() {
			return ErrStopped
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.SetState(session.Failed(err.Error()))
		_ = p.audio.Deactivate()
		return err
	}

	if err := p.audio.ConfigureForListening(ctx); err != nil {
		return abort(fmt.Errorf("configure audio: %w", err))
	}
	conn, err := p.dialer.Dial(ctx)
	if err != nil {
		return abort(backend.Classify(string(backend.OpenAIRealtime), err))
	}
	if err := conn.Send(ctx, realtime.NewSessionUpdate(p.cfg.session(systemPrompt))); err != nil {
		_ = conn.Close()
		return abort(backend.Classify(string(backend.OpenAIRealtime), err))
	}
	if err := p.player.Start(runCtx); err != nil {
		_ = conn.Close()
		return abort(fmt.Errorf("start playback: %w", err))
	}
	if err := p.source.Start(runCtx); err != nil {
		_ = conn.Close()
		_ = p.player.Stop()
		return abort(fmt.Errorf("start capture: %w", err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.life.stopped {
		_ = p.source.Stop()
		_ = p.player.Stop()
		_ = conn.Close()
		cancel()
		close(done)
		return ErrStopped
	}
	p.conn = conn
	p.assistant.Reset()
	p.SetState(session.Listening)
	p.logger.Info("realtime session started")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.capture(gctx, conn) })
	g.Go(func() error { return p.receive(gctx, conn) })

	go func() {
		defer close(done)
		defer cancel()
		err := g.Wait()
		_ = p.source.Stop()
		_ = p.player.Stop()
		_ = conn.Close()
		if err != nil && runCtx.Err() == nil {
			p.logger.Error("realtime session ended", "error", err)
			if !p.State().IsError() {
				p.SetState(session.Failed(err.Error()))
			}
			if derr := p.audio.Deactivate(); derr != nil {
				p.logger.Warn("deactivate audio session", "error", derr)
			}
		}
	}()
	return nil
}

func (p *RealtimePipeline) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.life.stopped
}

// Stop cancels the session tasks, closes the connection and releases
// audio. It always succeeds and may be called repeatedly.
func (p *RealtimePipeline) Stop() error {
	p.mu.Lock()
	cancel, done, first := p.life.end()
	p.mu.Unlock()
	if !first {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if err := p.audio.Deactivate(); err != nil {
		p.logger.Warn("deactivate audio session", "error", err)
	}
	p.SetState(session.Idle)
	p.Streams.Close()
	p.logger.Info("realtime session stopped")
	return nil
}

// Interrupt drops queued playback and cancels the in-progress response.
func (p *RealtimePipeline) Interrupt() {
	p.mu.Lock()
	conn := p.conn
	running := p.life.running()
	p.mu.Unlock()
	if !running || conn == nil {
		return
	}

	p.bargeIn("interrupt")
	if err := conn.Send(context.Background(), realtime.NewResponseCancel()); err != nil {
		p.logger.Warn("send response.cancel", "error", err)
	}
	p.SetState(session.Listening)
}

// Latency returns the metrics of the current or last turn.
func (p *RealtimePipeline) Latency() Metrics { return p.latency.snapshot() }

// AverageLatency returns mean latencies over recent turns.
func (p *RealtimePipeline) AverageLatency() Metrics { return p.latency.average() }

func (p *RealtimePipeline) bargeIn(cause string) {
	if err := p.player.Clear(); err != nil {
		p.logger.Warn("clear playback", "error", err)
	}
	metrics.BargeIns.WithLabelValues(realtimePipelineName, cause).Inc()
}

// capture converts microphone chunks to the wire format and sends them.
func (p *RealtimePipeline) capture(ctx context.Context, conn realtime.Conn) error {
	limiter := rate.NewLimiter(rate.Every(p.cfg.LevelInterval), 1)
	if p.cfg.LevelInterval == 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	stream := p.source.Stream()
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stream:
			if !ok {
				return nil
			}
			if limiter.Allow() {
				p.EmitLevel(audioio.Level(chunk.Samples))
			}
			wire := audioio.Convert(chunk, p.cfg.WireSampleRate)
			if err := conn.Send(ctx, realtime.NewAudioAppend(audioio.SamplesToBytes(wire.Samples))); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send audio: %w", err)
			}
			p.latency.audioIn()
		}
	}
}

// receive reads server events until the connection fails. A read failure
// is terminal: the session moves to the error state and is not redialed.
func (p *RealtimePipeline) receive(ctx context.Context, conn realtime.Conn) error {
	for {
		ev, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("realtime read: %w", backend.Classify(string(backend.OpenAIRealtime), err))
			p.SetState(session.Failed(err.Error()))
			return err
		}
		metrics.RealtimeEvents.WithLabelValues(ev.Type).Inc()
		if err := p.dispatch(ctx, ev); err != nil {
			return err
		}
	}
}

// dispatch applies one server event. It returns an error only for events
// that end the session.
func (p *RealtimePipeline) dispatch(ctx context.Context, ev realtime.ServerEvent) error {
	switch ev.Type {
	case realtime.EventSpeechStarted:
		p.SetState(session.Listening)
		p.bargeIn("speech")

	case realtime.EventSpeechStopped:
		p.latency.markSpeechEnd()
		p.SetState(session.Processing)

	case realtime.EventTranscriptDelta:
		p.latency.markFirstToken()
		p.mu.Lock()
		p.assistant.WriteString(ev.Delta)
		text := p.assistant.String()
		p.mu.Unlock()
		p.EmitTranscript(session.Transcript{Text: text, Role: session.RoleAssistant})

	case realtime.EventAudioDelta:
		pcm, err := ev.AudioBytes()
		if err != nil {
			p.logger.Warn("bad audio delta", "error", err)
			return nil
		}
		p.latency.markFirstAudio()
		p.SetState(session.Speaking)
		chunk := audioio.ChunkFromBytes(pcm, p.cfg.WireSampleRate, 1)
		if err := p.player.Enqueue(ctx, chunk); err != nil {
			p.logger.Warn("enqueue audio", "error", err)
			return nil
		}
		p.latency.audioOut()

	case realtime.EventTranscriptDone:
		p.mu.Lock()
		text := ev.Transcript
		if text == "" {
			text = p.assistant.String()
		}
		p.assistant.Reset()
		p.mu.Unlock()
		p.EmitTranscript(session.Transcript{Text: text, IsFinal: true, Role: session.RoleAssistant})

	case realtime.EventUserTranscriptCompleted:
		p.EmitTranscript(session.Transcript{Text: strings.TrimSpace(ev.Transcript), IsFinal: true, Role: session.RoleUser})

	case realtime.EventResponseDone:
		p.latency.markResponseDone()
		p.mu.Lock()
		p.assistant.Reset()
		p.mu.Unlock()
		p.SetState(session.Listening)
		p.traceTurn(ctx)

	case realtime.EventError:
		msg := ev.ErrorMessage()
		p.SetState(session.Failed(msg))
		return errors.New(msg)

	default:
		p.logger.Debug("unhandled event", "type", ev.Type)
	}
	return nil
}

// traceTurn records the finished turn as a span carrying its latencies.
func (p *RealtimePipeline) traceTurn(ctx context.Context) {
	m := p.latency.snapshot()
	if m.SpeechEndTime.IsZero() {
		return
	}
	_, span := tracer.Start(ctx, "voice.turn", trace.WithTimestamp(m.SpeechEndTime))
	span.SetAttributes(
		attribute.String("turn.pipeline", realtimePipelineName),
		attribute.Int64("turn.first_audio_ms", m.FirstAudio.Milliseconds()),
		attribute.Int("turn.audio_chunks_out", m.AudioChunksOut),
	)
	span.End(trace.WithTimestamp(m.ResponseDoneTime))
}
