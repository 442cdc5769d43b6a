// Command assistant-ears is the always-listening audio front-end of a voice
// assistant: it waits for the wake phrase, captures the spoken command and
// hands its transcript to the command bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"assistant-ears/clients/ai_bot"
	"assistant-ears/config"
	"assistant-ears/control"
	"assistant-ears/frame_source"
	"assistant-ears/listener"
	"assistant-ears/listener/voice_activity_detection"
	"assistant-ears/metrics"
	"assistant-ears/noise_floor"
	"assistant-ears/playback_gate"
	"assistant-ears/speech_to_text"
	"assistant-ears/utterance"
	"assistant-ears/utterance_recorder"
	"assistant-ears/wake_model"
	"assistant-ears/wake_spotter"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	modelFlag := flag.String("m", "", "model file for whisper")
	wavFlag := flag.String("wav", "", "replay a 16-bit PCM WAV file instead of the microphone")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "assistant-ears: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *modelFlag != "" {
			c.Transcription.ModelPath = *modelFlag
		}
		if *wavFlag != "" {
			c.Audio.Backend = config.BackendWav
			c.Audio.WavPath = *wavFlag
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "assistant-ears: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := metrics.InitProvider(metrics.ProviderConfig{})
	if err != nil {
		logger.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown error", "err", err)
		}
	}()

	source, err := newSource(cfg)
	if err != nil {
		logger.Error("failed to create audio source", "err", err)
		return 1
	}

	transcriber, closeTranscriber, err := newTranscriber(cfg, logger)
	if err != nil {
		logger.Error("failed to create transcriber", "backend", cfg.Transcription.Backend, "err", err)
		return 1
	}
	defer closeTranscriber()

	format := cfg.Audio.Format()

	tracker, err := noise_floor.New(&noise_floor.Config{
		InitialThreshold: cfg.Noise.InitialThreshold,
		MinThreshold:     cfg.Noise.MinThreshold,
		Alpha:            cfg.Noise.AdaptRate,
		Factor:           cfg.Noise.Factor,
	})
	if err != nil {
		logger.Error("failed to create noise tracker", "err", err)
		return 1
	}

	gate := playback_gate.NewFlag(&playback_gate.FlagConfig{Tail: cfg.Playback.Tail})

	segmenter, err := utterance.New(&utterance.Config{
		Tracker:         tracker,
		Gate:            gate,
		Format:          format,
		SilenceDuration: cfg.Capture.SilenceDuration,
		MaxDuration:     cfg.Capture.MaxDuration,
		Flux:            voice_activity_detection.New(format.FrameSize),
		Metrics:         provider.Metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create segmenter", "err", err)
		return 1
	}

	spotter, closeSpotter, err := newSpotter(cfg, segmenter, transcriber, gate, provider.Metrics, logger)
	if err != nil {
		logger.Error("failed to create wake spotter", "err", err)
		return 1
	}
	defer closeSpotter()

	var processor ai_bot.AIBotAPI
	if cfg.Commands.APIHost != "" {
		processor, err = ai_bot.NewClient(&ai_bot.Config{
			ApiHost: cfg.Commands.APIHost,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to create command bot client", "err", err)
			return 1
		}
	}

	var recorder utterance_recorder.Interface
	if cfg.Capture.RecordDir != "" {
		recorder, err = utterance_recorder.New(&utterance_recorder.Config{
			FileSys: afero.NewOsFs(),
			Dir:     cfg.Capture.RecordDir,
		})
		if err != nil {
			logger.Error("failed to create utterance recorder", "err", err)
			return 1
		}
	}

	session, err := listener.New(&listener.Config{
		Source:       source,
		Format:       format,
		Spotter:      spotter,
		Segmenter:    segmenter,
		Transcriber:  transcriber,
		Processor:    processor,
		Recorder:     recorder,
		EndPhrases:   cfg.Session.EndPhrases,
		ExitPhrases:  cfg.Session.ExitPhrases,
		WakeTimeout:  cfg.Wake.Timeout,
		ErrorBackoff: cfg.Session.ErrorBackoff,
		MaxBackoff:   cfg.Session.MaxBackoff,
		Metrics:      provider.Metrics,
		Logger:       logger,
		OnStatus: func(status string) {
			logger.Info("status", "text", status)
		},
		OnError: func(err error) {
			logger.Warn("session error", "err", err)
		},
	})
	if err != nil {
		logger.Error("failed to create listening session", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// an exit phrase or an exhausted source ends the whole process
		defer stop()

		err := session.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Control.ListenAddr != "" {
		ctl, err := control.New(&control.Config{
			Addr:     cfg.Control.ListenAddr,
			Session:  session,
			Playback: gate,
			Metrics:  provider.Handler,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("failed to create control server", "err", err)
			return 1
		}
		g.Go(func() error {
			return ctl.ListenAndServe(gctx)
		})
	}

	logger.Info("assistant-ears starting",
		"backend", cfg.Audio.Backend,
		"transcriber", cfg.Transcription.Backend,
		"wake_model", cfg.Wake.ModelPath != "",
		"control", cfg.Control.ListenAddr,
	)

	if err := g.Wait(); err != nil {
		logger.Error("run error", "err", err)
		return 1
	}

	logger.Info("stopped")
	return 0
}

func newSource(cfg *config.Config) (frame_source.Interface, error) {
	switch cfg.Audio.Backend {
	case config.BackendMalgo:
		return frame_source.NewMalgo(), nil
	case config.BackendWav:
		return frame_source.NewWav(&frame_source.WavConfig{
			FileSys:  afero.NewOsFs(),
			Path:     cfg.Audio.WavPath,
			Realtime: cfg.Audio.Realtime,
		})
	default:
		return frame_source.NewPortAudio(&frame_source.PortAudioConfig{
			DeviceName: cfg.Audio.Device,
		})
	}
}

func newTranscriber(cfg *config.Config, logger *slog.Logger) (speech_to_text.Interface, func(), error) {
	t := cfg.Transcription

	if t.Backend == config.TranscriberOpenAI {
		stt, err := speech_to_text.NewOpenAI(&speech_to_text.OpenAIConfig{
			APIKey:   t.APIKey,
			BaseURL:  t.BaseURL,
			Model:    t.Model,
			Language: t.Language,
			Logger:   logger,
		})
		return stt, func() {}, err
	}

	model, err := whisper.New(t.ModelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load whisper model %s: %w", t.ModelPath, err)
	}

	stt, err := speech_to_text.New(&speech_to_text.Config{
		Model:    model,
		Language: t.Language,
		Logger:   logger,
	})
	if err != nil {
		model.Close()
		return nil, nil, err
	}

	return stt, func() { model.Close() }, nil
}

// newSpotter picks the wake strategy once: the ONNX model when one is
// configured, otherwise transcribing utterances and matching the phrase.
func newSpotter(
	cfg *config.Config,
	segmenter utterance.Interface,
	transcriber speech_to_text.Interface,
	gate playback_gate.Interface,
	m *metrics.Metrics,
	logger *slog.Logger,
) (wake_spotter.Interface, func(), error) {
	if cfg.Wake.ModelPath == "" {
		logger.Info("no wake model configured, using transcription fallback", "phrase", cfg.Wake.Phrase)

		spotter, err := wake_spotter.NewFallback(&wake_spotter.FallbackConfig{
			Segmenter:   segmenter,
			Transcriber: transcriber,
			Phrase:      cfg.Wake.Phrase,
			Metrics:     m,
			Logger:      logger,
		})
		return spotter, func() {}, err
	}

	model, err := wake_model.New(&wake_model.Config{
		ModelPath:   cfg.Wake.ModelPath,
		LibraryPath: cfg.Wake.OnnxLibrary,
		SampleRate:  cfg.Audio.SampleRate,
		Window:      cfg.Wake.Window,
	})
	if err != nil {
		return nil, nil, err
	}

	closeModel := func() {
		if err := model.Close(); err != nil {
			logger.Warn("wake model close error", "err", err)
		}
		if err := wake_model.DestroyRuntime(); err != nil {
			logger.Warn("onnx runtime teardown error", "err", err)
		}
	}

	spotter, err := wake_spotter.NewModel(&wake_spotter.ModelConfig{
		Scorer:    model,
		Gate:      gate,
		Threshold: float32(cfg.Wake.Threshold),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		closeModel()
		return nil, nil, err
	}

	return spotter, closeModel, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
