// Package rvc wraps a retrieval-based voice-conversion engine behind an
// explicit handle. Each Engine is configured once with a voice model and its
// conversion parameters, converts any number of files concurrently, and is
// torn down when the chat session ends.
package rvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

var (
	// ErrNotConfigured is returned by Convert before Configure succeeded.
	ErrNotConfigured = errors.New("rvc: engine not configured")
	// ErrInvalidParams is returned when conversion parameters are out of range.
	ErrInvalidParams = errors.New("rvc: invalid parameters")
)

// Params are the conversion knobs understood by the engine.
type Params struct {
	IndexRate    float64
	FilterRadius int
	Protect      float64
	PitchMethod  string
	PitchShift   int
	ResampleRate int
	RMSMixRate   float64
}

func (p Params) Validate() error {
	switch {
	case p.IndexRate < 0 || p.IndexRate > 1:
		return fmt.Errorf("%w: index_rate %v", ErrInvalidParams, p.IndexRate)
	case p.FilterRadius < 0:
		return fmt.Errorf("%w: filter_radius %d", ErrInvalidParams, p.FilterRadius)
	case p.Protect < 0 || p.Protect > 0.5:
		return fmt.Errorf("%w: protect %v", ErrInvalidParams, p.Protect)
	case p.RMSMixRate < 0 || p.RMSMixRate > 1:
		return fmt.Errorf("%w: rms_mix_rate %v", ErrInvalidParams, p.RMSMixRate)
	case p.ResampleRate < 0:
		return fmt.Errorf("%w: resample_sr %d", ErrInvalidParams, p.ResampleRate)
	}
	switch strings.ToLower(p.PitchMethod) {
	case "", "pm", "harvest", "crepe", "rmvpe":
		return nil
	default:
		return fmt.Errorf("%w: f0method %q", ErrInvalidParams, p.PitchMethod)
	}
}

// Backend performs the actual inference.
type Backend interface {
	Load(ctx context.Context, modelPath, indexPath string, p Params) error
	Convert(ctx context.Context, inputPath, outputPath string) error
	Close() error
}

// Engine is a configured voice-conversion handle.
type Engine struct {
	mu         sync.RWMutex
	backend    Backend
	configured bool
	modelPath  string
	indexPath  string
	params     Params
}

func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend}
}

// Configure loads modelPath (and optional indexPath) with the given params.
// Calling it again swaps the model in place.
func (e *Engine) Configure(ctx context.Context, modelPath, indexPath string, p Params) error {
	if strings.TrimSpace(modelPath) == "" {
		return fmt.Errorf("%w: model path is required", ErrInvalidParams)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backend.Load(ctx, modelPath, indexPath, p); err != nil {
		e.configured = false
		return fmt.Errorf("rvc: load %s: %w", modelPath, err)
	}
	e.configured = true
	e.modelPath = modelPath
	e.indexPath = indexPath
	e.params = p
	log.Printf("[rvc] model loaded: %s (index=%q f0method=%s f0up_key=%d)", modelPath, indexPath, p.PitchMethod, p.PitchShift)
	return nil
}

// Convert re-voices inputPath into outputPath. Safe for concurrent use.
func (e *Engine) Convert(ctx context.Context, inputPath, outputPath string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.configured {
		return ErrNotConfigured
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("rvc: input %s: %w", inputPath, err)
	}
	return e.backend.Convert(ctx, inputPath, outputPath)
}

// Configured reports whether a model is loaded.
func (e *Engine) Configured() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.configured
}

// Params returns the parameters of the loaded model.
func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// Teardown unloads the model and releases backend resources. Waits for
// in-flight conversions to finish.
func (e *Engine) Teardown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return nil
	}
	e.configured = false
	log.Printf("[rvc] model unloaded: %s", e.modelPath)
	return e.backend.Close()
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	Python  string
	APIURL  string
	Device  string
}

func NewBackend(cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "cli":
		return NewCLIBackend(cfg.Python, cfg.Device), nil
	case "api":
		if strings.TrimSpace(cfg.APIURL) == "" {
			return nil, errors.New("rvc api url is required for api backend")
		}
		return NewAPIBackend(cfg.APIURL, cfg.Device), nil
	case "passthrough":
		return PassthroughBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported rvc backend %q (expected cli|api|passthrough)", cfg.Backend)
	}
}
