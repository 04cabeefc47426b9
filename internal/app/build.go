package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/rvcchat/internal/audio"
	"github.com/ent0n29/rvcchat/internal/config"
	"github.com/ent0n29/rvcchat/internal/httpapi"
	"github.com/ent0n29/rvcchat/internal/llm"
	"github.com/ent0n29/rvcchat/internal/memory"
	"github.com/ent0n29/rvcchat/internal/observability"
	"github.com/ent0n29/rvcchat/internal/rvc"
	"github.com/ent0n29/rvcchat/internal/tts"
)

// Options selects which parts of the pipeline Build wires up.
type Options struct {
	// Voice builds the synthesizer, the voice-conversion engine and the player.
	Voice bool
	// ValidateKey runs a credential check against the chat backend.
	ValidateKey bool
}

type BuildResult struct {
	Config  config.Config
	Source  llm.Source
	Memory  memory.Store
	Metrics *observability.Metrics
	Hub     *httpapi.Hub
	API     *httpapi.Server

	// Set only when Options.Voice is true.
	TTS    tts.Synthesizer
	Engine *rvc.Engine
	Player audio.Player

	// Cleanup should be called on shutdown to release external resources (DB, model, rvc server).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	hub := httpapi.NewHub(metrics)

	memoryStore, err := memory.NewStore(ctx, cfg.MemoryBackend, cfg.MemoryDir, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	source, err := llm.NewSource(llm.Config{
		Mode:            cfg.ChatProvider,
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.TextModel,
		ReasoningEffort: cfg.ReasoningEffort,
		HTTPURL:         cfg.ChatHTTPURL,
		HTTPStrict:      cfg.ChatHTTPStrict,
	})
	if err != nil {
		_ = memoryStore.Close()
		return nil, fmt.Errorf("chat source init failed: %w", err)
	}
	if opts.ValidateKey && cfg.ValidateAPIKey {
		if err := checkSource(ctx, source); err != nil {
			_ = memoryStore.Close()
			return nil, err
		}
	}

	res := &BuildResult{
		Config:  cfg,
		Source:  source,
		Memory:  memoryStore,
		Metrics: metrics,
		Hub:     hub,
		API:     httpapi.New(cfg, metrics, hub, memoryStore),
	}

	var rvcServer *rvcAPIServer
	if opts.Voice {
		if rvcServer, err = res.buildVoice(ctx); err != nil {
			_ = memoryStore.Close()
			return nil, err
		}
	}

	res.Cleanup = func() error {
		var errs []string
		if res.Engine != nil {
			if err := res.Engine.Teardown(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := rvcServer.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := memoryStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	return res, nil
}

func (b *BuildResult) buildVoice(ctx context.Context) (*rvcAPIServer, error) {
	cfg := b.Config

	synth, err := tts.NewSynthesizer(tts.Config{
		Mode:       cfg.TTSProvider,
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.TTSModel,
		Voice:      cfg.TTSVoice,
		Timeout:    cfg.TTSTimeout,
		MaxRetries: cfg.TTSMaxRetries,
		Fallback:   cfg.TTSFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("tts init failed: %w", err)
	}

	player, err := audio.NewPlayer(cfg.Player)
	if err != nil {
		return nil, fmt.Errorf("player init failed: %w", err)
	}

	rvcServer, err := startRVCServer(ctx, cfg)
	if err != nil {
		// The api backend reports the unreachable server on Configure.
		log.Printf("[app] %v", err)
	}
	if rvcServer != nil {
		log.Printf("[app] started rvc api server on %s", rvcServer.addr)
	}

	backend, err := rvc.NewBackend(rvc.Config{
		Backend: cfg.RVCBackend,
		Python:  cfg.RVCPython,
		APIURL:  cfg.RVCAPIURL,
		Device:  cfg.RVCDevice,
	})
	if err != nil {
		_ = rvcServer.Stop()
		return nil, fmt.Errorf("rvc backend init failed: %w", err)
	}
	engine := rvc.NewEngine(backend)

	modelPath := cfg.ModelPath()
	if modelPath == "" && strings.EqualFold(cfg.RVCBackend, "passthrough") {
		modelPath = "passthrough"
	}
	if err := engine.Configure(ctx, modelPath, cfg.IndexPath(), rvc.Params{
		IndexRate:    cfg.IndexRate,
		FilterRadius: cfg.FilterRadius,
		Protect:      cfg.Protect,
		PitchMethod:  cfg.PitchMethod,
		PitchShift:   cfg.PitchShift,
		ResampleRate: cfg.ResampleRate,
		RMSMixRate:   cfg.RMSMixRate,
	}); err != nil {
		_ = rvcServer.Stop()
		return nil, err
	}

	b.TTS = synth
	b.Engine = engine
	b.Player = player
	return rvcServer, nil
}

func checkSource(ctx context.Context, source llm.Source) error {
	hc, ok := source.(llm.HealthChecker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := hc.Health(ctx); err != nil {
		return fmt.Errorf("%w: chat credentials rejected: %v", config.ErrConfig, err)
	}
	return nil
}
