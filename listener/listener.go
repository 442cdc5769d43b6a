package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"assistant-ears/audio_frame"
	"assistant-ears/clients/ai_bot"
	"assistant-ears/frame_source"
	"assistant-ears/metrics"
	"assistant-ears/speech_to_text"
	"assistant-ears/utterance"
	"assistant-ears/utterance_recorder"
	"assistant-ears/wake_spotter"
)

const (
	defaultErrorBackoff = 2 * time.Second
	defaultMaxBackoff   = 30 * time.Second
)

var (
	errExit      = errors.New("exit requested")
	errTriggered = errors.New("manual trigger")
)

type Config struct {
	Source      frame_source.Interface
	Format      audio_frame.Format
	Spotter     wake_spotter.Interface
	Segmenter   utterance.Interface
	Transcriber speech_to_text.Interface

	// Processor receives every command transcript. Optional; without it
	// transcripts are only logged.
	Processor ai_bot.AIBotAPI
	// Recorder, if set, keeps a WAV copy of every captured utterance.
	Recorder utterance_recorder.Interface

	EndPhrases  []string
	ExitPhrases []string

	// WakeTimeout bounds each Detect call; zero waits indefinitely.
	WakeTimeout  time.Duration
	ErrorBackoff time.Duration
	MaxBackoff   time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	OnTransition func(from, to State)
	OnStatus     func(status string)
	OnError      func(err error)
}

type listenerImpl struct {
	source      frame_source.Interface
	format      audio_frame.Format
	spotter     wake_spotter.Interface
	segmenter   utterance.Interface
	transcriber speech_to_text.Interface
	processor   ai_bot.AIBotAPI
	recorder    utterance_recorder.Interface

	endPhrases  []string
	exitPhrases []string

	wakeTimeout  time.Duration
	errorBackoff time.Duration
	maxBackoff   time.Duration

	metrics *metrics.Metrics
	log     *slog.Logger

	onTransition func(from, to State)
	onStatus     func(string)
	onError      func(error)

	state   atomic.Int32
	running atomic.Bool
	trigger chan struct{}
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	if cfg.Spotter == nil {
		return nil, fmt.Errorf("spotter is nil")
	}

	if cfg.Segmenter == nil {
		return nil, fmt.Errorf("segmenter is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	l := &listenerImpl{
		source:       cfg.Source,
		format:       cfg.Format,
		spotter:      cfg.Spotter,
		segmenter:    cfg.Segmenter,
		transcriber:  cfg.Transcriber,
		processor:    cfg.Processor,
		recorder:     cfg.Recorder,
		endPhrases:   cfg.EndPhrases,
		exitPhrases:  cfg.ExitPhrases,
		wakeTimeout:  cfg.WakeTimeout,
		errorBackoff: cfg.ErrorBackoff,
		maxBackoff:   cfg.MaxBackoff,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		onTransition: cfg.OnTransition,
		onStatus:     cfg.OnStatus,
		onError:      cfg.OnError,
		trigger:      make(chan struct{}, 1),
	}

	if l.errorBackoff <= 0 {
		l.errorBackoff = defaultErrorBackoff
	}
	if l.maxBackoff < l.errorBackoff {
		l.maxBackoff = max(defaultMaxBackoff, l.errorBackoff)
	}
	if l.metrics == nil {
		l.metrics = metrics.Default()
	}
	if l.log == nil {
		l.log = slog.Default()
	}

	return l, nil
}

func (l *listenerImpl) State() State {
	return State(l.state.Load())
}

func (l *listenerImpl) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

func (l *listenerImpl) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	stream, err := l.source.Open(l.format)
	if err != nil {
		return fmt.Errorf("listener: open: %w", err)
	}
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	l.log.Info("listening session online", "sample_rate", l.format.SampleRate, "frame_size", l.format.FrameSize)
	l.status(StatusOnline)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(ctx, StateArmedForWake)

		activated, err := l.awaitWake(ctx, stream)
		if err == nil && activated {
			err = l.converse(ctx, stream)
		}

		switch {
		case err == nil:
		case errors.Is(err, errExit):
			l.log.Info("exit phrase heard, shutting down")
			return nil
		case errors.Is(err, io.EOF):
			l.log.Info("audio source exhausted")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			if stream, err = l.reopen(ctx, stream, err); err != nil {
				return err
			}
		}
	}
}

// awaitWake blocks until the wake phrase is detected or a manual trigger
// arrives. A trigger during Detect cancels it.
func (l *listenerImpl) awaitWake(ctx context.Context, reader frame_source.Reader) (bool, error) {
	select {
	case <-l.trigger:
		l.log.Info("manual wake trigger")
		l.metrics.RecordWake(ctx, "manual")
		return true, nil
	default:
	}

	detectCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-l.trigger:
			cancel(errTriggered)
		case <-stop:
		case <-detectCtx.Done():
		}
	}()

	detected, err := l.spotter.Detect(detectCtx, reader, l.wakeTimeout)
	close(stop)
	<-done

	// a device failure wins over a trigger that raced it
	if frame_source.IsDeviceError(err) {
		return false, err
	}

	if ctx.Err() == nil && errors.Is(context.Cause(detectCtx), errTriggered) {
		l.log.Info("manual wake trigger")
		l.metrics.RecordWake(ctx, "manual")
		return true, nil
	}

	return detected, err
}

// converse handles one conversation from activation until it returns to
// Idle. It returns errExit when an exit phrase is heard.
func (l *listenerImpl) converse(ctx context.Context, reader frame_source.Reader) error {
	l.setState(ctx, StateActivated)
	l.status(StatusActivated)

	// a trigger racing the detection must not re-activate the next cycle
	select {
	case <-l.trigger:
	default:
	}

	for {
		l.setState(ctx, StateCapturing)
		l.status(StatusListening)

		u, err := l.segmenter.Capture(ctx, reader)
		if errors.Is(err, io.EOF) {
			u, err = nil, nil
		}
		if err != nil {
			return err
		}

		if u == nil {
			l.log.Info("nothing heard, conversation ended")
			l.idle(ctx, StatusIdle)
			return nil
		}

		l.setState(ctx, StateProcessing)
		l.status(StatusProcessing)

		l.record(u)

		text, err := l.transcribe(ctx, u)
		if err != nil {
			return err
		}

		if text == "" {
			l.log.Info("empty transcript, conversation ended", "utterance", u.ID)
			l.idle(ctx, StatusIdle)
			return nil
		}

		l.log.Info("command heard", "text", text, "utterance", u.ID, "duration", u.Duration)

		if matchesAny(text, l.exitPhrases) {
			l.status(StatusShutdown)
			l.idle(ctx, "")
			return errExit
		}

		if matchesAny(text, l.endPhrases) {
			l.log.Info("conversation ended by phrase", "text", text)
			l.idle(ctx, StatusReady)
			return nil
		}

		l.process(ctx, text)
	}
}

// transcribe returns the trimmed transcript of u. Transcription failures
// are absorbed as an empty transcript; only cancellation is returned.
func (l *listenerImpl) transcribe(ctx context.Context, u *utterance.Utterance) (string, error) {
	text, err := l.transcriber.Transcribe(ctx, u.PCM, u.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		l.log.Warn("transcription failed", "utterance", u.ID, "err", err)
		l.reportError(err)
		return "", nil
	}

	return strings.TrimSpace(text), nil
}

func (l *listenerImpl) process(ctx context.Context, text string) {
	if l.processor == nil {
		return
	}

	if err := l.processor.Process(ctx, text, l.status); err != nil {
		l.log.Warn("command processing failed", "err", err)
		l.reportError(err)
	}
}

func (l *listenerImpl) record(u *utterance.Utterance) {
	if l.recorder == nil {
		return
	}

	path, err := l.recorder.Save(u)
	if err != nil {
		l.log.Warn("failed to save utterance", "utterance", u.ID, "err", err)
		return
	}

	l.log.Debug("utterance saved", "utterance", u.ID, "path", path)
}

// reopen closes the failed stream, waits out the backoff and reopens the
// device, retrying until it succeeds or ctx is done.
func (l *listenerImpl) reopen(ctx context.Context, stream frame_source.Stream, cause error) (frame_source.Stream, error) {
	l.log.Error("audio device failed", "err", cause)
	l.metrics.DeviceErrors.Add(ctx, 1)
	l.reportError(cause)
	l.status(StatusError)

	if stream != nil {
		if err := stream.Close(); err != nil {
			l.log.Warn("failed to close stream", "err", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.errorBackoff
	b.MaxInterval = l.maxBackoff
	b.MaxElapsedTime = 0

	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	var reopened frame_source.Stream
	err := backoff.RetryNotify(func() error {
		s, err := l.source.Open(l.format)
		if err != nil {
			return err
		}
		reopened = s
		return nil
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		l.log.Warn("reopening audio device failed", "err", err, "retry_in", next)
		l.metrics.DeviceErrors.Add(ctx, 1)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("audio device reopened")
	return reopened, nil
}

func (l *listenerImpl) idle(ctx context.Context, status string) {
	l.setState(ctx, StateIdle)
	if status != "" {
		l.status(status)
	}
}

func (l *listenerImpl) setState(ctx context.Context, to State) {
	from := State(l.state.Swap(int32(to)))
	if from == to {
		return
	}

	l.log.Debug("session state", "from", from, "to", to)
	l.metrics.RecordTransition(ctx, from.String(), to.String())

	if l.onTransition != nil {
		l.onTransition(from, to)
	}
}

func (l *listenerImpl) status(s string) {
	if l.onStatus != nil {
		l.onStatus(s)
	}
}

func (l *listenerImpl) reportError(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if wake_spotter.ContainsWords(text, p) {
			return true
		}
	}
	return false
}
