package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/inference"
	"github.com/teslashibe/voicecore/pkg/session"
	"github.com/teslashibe/voicecore/pkg/stt"
	"github.com/teslashibe/voicecore/pkg/tts"
)

const turnPipelineName = "turn"

// TurnDeps are the collaborators of a TurnPipeline. Audio may be nil.
type TurnDeps struct {
	Recognizer stt.Recognizer
	Model      inference.Model
	Speaker    tts.Speaker
	Audio      AudioSession
	Logger     *slog.Logger
}

// TurnPipeline alternates listening and speaking on a single goroutine.
type TurnPipeline struct {
	*session.Streams

	rec     stt.Recognizer
	model   inference.Model
	speaker tts.Speaker
	audio   AudioSession
	cfg     Config
	logger  *slog.Logger
	latency *latencyTracker

	mu          sync.Mutex
	life        lifecycle
	history     []inference.Message
	cancelReply context.CancelCauseFunc
}

// NewTurnPipeline creates an idle pipeline.
func NewTurnPipeline(deps TurnDeps, opts ...Option) (*TurnPipeline, error) {
	if deps.Recognizer == nil || deps.Model == nil || deps.Speaker == nil {
		return nil, fmt.Errorf("%w: recognizer, model and speaker are required", ErrMissingDep)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if deps.Audio == nil {
		deps.Audio = noAudioSession{}
	}
	log := logger(deps.Logger, "voice.turn")
	return &TurnPipeline{
		Streams: session.NewStreams(turnPipelineName, log),
		rec:     deps.Recognizer,
		model:   deps.Model,
		speaker: deps.Speaker,
		audio:   deps.Audio,
		cfg:     cfg,
		logger:  log,
		latency: newLatencyTracker(turnPipelineName),
	}, nil
}

// Start begins the listen/respond loop. The loop lives until ctx is
// cancelled, Stop is called, or a stage fails. Start may be called again
// after a failure; the history restarts from systemPrompt.
func (p *TurnPipeline) Start(ctx context.Context, systemPrompt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, done, err := p.life.begin(ctx)
	if err != nil {
		return err
	}
	p.history = p.history[:0]
	if strings.TrimSpace(systemPrompt) != "" {
		p.history = append(p.history, inference.NewSystemMessage(systemPrompt))
	}

	p.logger.Info("turn pipeline starting")
	cancel := p.life.cancel
	go func() {
		defer close(done)
		defer cancel()
		p.run(runCtx)
	}()
	return nil
}

// Stop ends the loop, stops speech and releases the audio session. It
// always succeeds and may be called repeatedly.
func (p *TurnPipeline) Stop() error {
	p.mu.Lock()
	cancel, done, first := p.life.end()
	if p.cancelReply != nil {
		p.cancelReply(ErrStopped)
	}
	p.mu.Unlock()
	if !first {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	_ = p.speaker.Stop()
	if done != nil {
		<-done
	}
	if err := p.audio.Deactivate(); err != nil {
		p.logger.Warn("deactivate audio session", "error", err)
	}
	p.SetState(session.Idle)
	p.Streams.Close()
	p.logger.Info("turn pipeline stopped")
	return nil
}

// Interrupt cuts the current reply short. The spoken part is kept in the
// history and the pipeline goes back to listening.
func (p *TurnPipeline) Interrupt() {
	p.mu.Lock()
	cancel := p.cancelReply
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel(errInterrupted)
	_ = p.speaker.Stop()
	p.logger.Debug("reply interrupted")
}

// History returns a copy of the conversation so far.
func (p *TurnPipeline) History() []inference.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]inference.Message(nil), p.history...)
}

// Latency returns the metrics of the current or last turn.
func (p *TurnPipeline) Latency() Metrics { return p.latency.snapshot() }

// AverageLatency returns mean latencies over recent turns.
func (p *TurnPipeline) AverageLatency() Metrics { return p.latency.average() }

func (p *TurnPipeline) run(ctx context.Context) {
	for ctx.Err() == nil {
		text, err := p.listen(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.fail(err)
			}
			return
		}
		if strings.TrimSpace(text) == "" {
			p.logger.Debug("empty utterance, listening again")
			continue
		}
		if err := p.respond(ctx, text); err != nil {
			if ctx.Err() == nil {
				p.fail(err)
			}
			return
		}
	}
}

func (p *TurnPipeline) fail(err error) {
	p.logger.Error("turn pipeline failed", "error", err)
	p.SetState(session.Failed(err.Error()))
	if derr := p.audio.Deactivate(); derr != nil {
		p.logger.Warn("deactivate audio session", "error", derr)
	}
}

// listen runs one recognition pass and returns the first final transcript.
func (p *TurnPipeline) listen(ctx context.Context) (string, error) {
	p.SetState(session.Listening)
	if err := p.audio.ConfigureForListening(ctx); err != nil {
		return "", fmt.Errorf("configure audio: %w", err)
	}

	transcripts, levels, err := p.rec.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("start recognizer: %w", backend.Classify("stt", err))
	}

	levelCtx, stopLevels := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-levelCtx.Done():
				return
			case lvl, ok := <-levels:
				if !ok {
					return
				}
				p.EmitLevel(lvl)
			}
		}
	}()
	defer func() {
		stopLevels()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = p.rec.Stop()
			return "", ctx.Err()
		case tr, ok := <-transcripts:
			if !ok {
				_ = p.rec.Stop()
				return "", errors.New("recognizer closed before a final transcript")
			}
			if !tr.IsFinal {
				tr.Role = session.RoleUser
				p.EmitTranscript(tr)
				continue
			}
			if err := p.rec.Stop(); err != nil {
				p.logger.Debug("stop recognizer", "error", err)
			}
			return tr.Text, nil
		}
	}
}

// respond streams a reply to text and speaks it sentence by sentence.
func (p *TurnPipeline) respond(ctx context.Context, text string) (err error) {
	p.latency.markSpeechEnd()
	ctx, span := tracer.Start(ctx, "voice.turn")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int("turn.user_chars", len(text)))

	replyCtx, cancel := context.WithCancelCause(ctx)
	p.mu.Lock()
	if p.life.stopped {
		p.mu.Unlock()
		cancel(ErrStopped)
		return nil
	}
	p.cancelReply = cancel
	p.history = appendUserMessage(p.history, text)
	history := append([]inference.Message(nil), p.history...)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancelReply = nil
		p.mu.Unlock()
		cancel(nil)
	}()

	p.EmitTranscript(session.Transcript{Text: text, IsFinal: true, Role: session.RoleUser})
	p.SetState(session.Processing)

	stream, err := p.model.StreamReply(replyCtx, history)
	if err != nil {
		if interrupted(replyCtx) {
			p.finishReply(text, "", span)
			return nil
		}
		return backend.Classify(modelName(p.model), err)
	}
	defer stream.Close()

	p.SetState(session.Speaking)
	if err := p.audio.ConfigureForSpeaking(ctx); err != nil {
		return fmt.Errorf("configure audio: %w", err)
	}

	var full, pending strings.Builder
	speak := func(s string) error {
		p.latency.markFirstAudio()
		if err := p.speaker.Speak(replyCtx, s); err != nil {
			if replyCtx.Err() != nil {
				return replyCtx.Err()
			}
			p.logger.Warn("speak failed", "error", err)
		}
		return nil
	}

	for {
		chunk, rerr := stream.Recv()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if interrupted(replyCtx) {
				p.finishReply(text, full.String(), span)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return backend.Classify(modelName(p.model), rerr)
		}
		if chunk.Delta != "" {
			p.latency.markFirstToken()
			full.WriteString(chunk.Delta)
			pending.WriteString(chunk.Delta)
			p.EmitTranscript(session.Transcript{Text: full.String(), Role: session.RoleAssistant})

			sentences, rest := splitSentences(pending.String())
			pending.Reset()
			pending.WriteString(rest)
			for _, s := range sentences {
				if err := speak(s); err != nil {
					if interrupted(replyCtx) {
						p.finishReply(text, full.String(), span)
						return nil
					}
					return err
				}
			}
		}
		if chunk.Done {
			break
		}
	}

	if rest := pending.String(); strings.TrimSpace(rest) != "" {
		if err := speak(rest); err != nil {
			if interrupted(replyCtx) {
				p.finishReply(text, full.String(), span)
				return nil
			}
			return err
		}
	}

	p.finishReply(text, full.String(), span)
	return nil
}

// appendUserMessage adds an utterance to history. An utterance that follows
// one left unanswered (an empty reply, or an interrupt before the first
// token) is merged into it so user and assistant turns keep alternating.
func appendUserMessage(history []inference.Message, text string) []inference.Message {
	if n := len(history); n > 0 && history[n-1].Role == inference.RoleUser {
		history[n-1] = inference.NewUserMessage(history[n-1].Content + " " + text)
		return history
	}
	return append(history, inference.NewUserMessage(text))
}

// finishReply records the assistant reply, complete or partial. An empty
// reply records nothing.
func (p *TurnPipeline) finishReply(user, reply string, span trace.Span) {
	p.latency.markResponseDone()
	span.SetAttributes(attribute.Int("turn.reply_chars", len(reply)))
	if reply == "" {
		return
	}
	p.mu.Lock()
	p.history = append(p.history, inference.NewAssistantMessage(reply))
	p.mu.Unlock()
	p.EmitTranscript(session.Transcript{Text: reply, IsFinal: true, Role: session.RoleAssistant})
	if p.cfg.OnReply != nil {
		p.cfg.OnReply(user, reply)
	}
	p.logger.Debug("turn complete", "latency", p.latency.snapshot().FormatLatency())
}

func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errInterrupted)
}

func modelName(m inference.Model) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "model"
}
