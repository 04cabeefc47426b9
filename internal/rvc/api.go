package rvc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/rvcchat/internal/audio"
	"github.com/ent0n29/rvcchat/internal/reliability"
)

// APIBackend drives a running rvc-python API server.
type APIBackend struct {
	baseURL string
	device  string
	client  *http.Client
}

func NewAPIBackend(baseURL, device string) *APIBackend {
	return &APIBackend{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		device:  device,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("rvc api status %d: %s", e.code, e.body) }

func (b *APIBackend) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &statusError{code: res.StatusCode, body: msg}
	}
	return out, nil
}

func (b *APIBackend) Load(ctx context.Context, modelPath, _ string, p Params) error {
	if b.device != "" {
		if _, err := b.do(ctx, http.MethodPost, "/set_device", map[string]string{"device": b.device}); err != nil {
			return fmt.Errorf("set device: %w", err)
		}
	}
	// The server resolves models by directory name under its own models dir.
	name := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	if _, err := b.do(ctx, http.MethodGet, "/load/"+url.PathEscape(name), nil); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	params := map[string]any{
		"f0method":      p.PitchMethod,
		"f0up_key":      p.PitchShift,
		"index_rate":    p.IndexRate,
		"filter_radius": p.FilterRadius,
		"resample_sr":   p.ResampleRate,
		"rms_mix_rate":  p.RMSMixRate,
		"protect":       p.Protect,
	}
	if _, err := b.do(ctx, http.MethodPost, "/set_params", map[string]any{"params": params}); err != nil {
		return fmt.Errorf("set params: %w", err)
	}
	return nil
}

func (b *APIBackend) Convert(ctx context.Context, inputPath, outputPath string) error {
	in, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	payload := map[string]string{"audio_data": base64.StdEncoding.EncodeToString(in)}

	var out []byte
	err = reliability.Retry(ctx, 2, 200*time.Millisecond, 2*time.Second, isRetryableStatus, func() error {
		var err error
		out, err = b.do(ctx, http.MethodPost, "/convert", payload)
		return err
	})
	if err != nil {
		return err
	}
	return audio.WriteFileAtomic(outputPath, out)
}

func isRetryableStatus(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.code)
	}
	return reliability.IsRetryableNetError(err)
}

func (b *APIBackend) Close() error { return nil }
