package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleSettings = `{
  "user": {"openAI_apiKey": "sk-test"},
  "model_description": ["You are Aiko.", "Answer briefly."],
  "model_settings": {
    "openAI_text_model": "gpt-5-mini",
    "index_rate": 0.5,
    "filter_radius": 4,
    "protect": 0.2,
    "f0method": "harvest",
    "f0up_key": 6,
    "resample_sr": 40000,
    "rms_mix_rate": 0.3
  },
  "model_files": {"name": "aiko.pth", "index": "aiko.index"}
}`

func TestLoadReadsSettingsFile(t *testing.T) {
	setCoreEnvEmpty(t)
	path := writeSettings(t, sampleSettings)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-test", cfg.OpenAIAPIKey)
	}
	if cfg.SystemPrompt != "You are Aiko.\nAnswer briefly." {
		t.Fatalf("SystemPrompt = %q", cfg.SystemPrompt)
	}
	if cfg.TextModel != "gpt-5-mini" {
		t.Fatalf("TextModel = %q, want gpt-5-mini", cfg.TextModel)
	}
	if cfg.ConversationName != "aiko" {
		t.Fatalf("ConversationName = %q, want aiko", cfg.ConversationName)
	}
	if cfg.ModelPath() != filepath.Join("models", "aiko.pth") {
		t.Fatalf("ModelPath() = %q", cfg.ModelPath())
	}
	if cfg.IndexPath() != filepath.Join("models", "aiko.index") {
		t.Fatalf("IndexPath() = %q", cfg.IndexPath())
	}
	if cfg.IndexRate != 0.5 || cfg.FilterRadius != 4 || cfg.Protect != 0.2 {
		t.Fatalf("rvc params = %v/%d/%v", cfg.IndexRate, cfg.FilterRadius, cfg.Protect)
	}
	if cfg.PitchMethod != "harvest" || cfg.PitchShift != 6 || cfg.ResampleRate != 40000 || cfg.RMSMixRate != 0.3 {
		t.Fatalf("rvc pitch/resample params = %q/%d/%d/%v", cfg.PitchMethod, cfg.PitchShift, cfg.ResampleRate, cfg.RMSMixRate)
	}
	if got := cfg.PlaybackTimeout(); got != 3*time.Minute {
		t.Fatalf("PlaybackTimeout() = %v, want 3m", got)
	}
}

func TestLoadEnvOverridesSettingsFile(t *testing.T) {
	setCoreEnvEmpty(t)
	path := writeSettings(t, sampleSettings)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("CONVERSATION_NAME", "night")
	t.Setenv("RVC_PITCH_SHIFT", "-3")
	t.Setenv("CHAT_USE_MEMORY", "off")
	t.Setenv("PLAYBACK_POLL_INTERVAL", "100ms")
	t.Setenv("PLAYBACK_MAX_ATTEMPTS", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-env" {
		t.Fatalf("OpenAIAPIKey = %q, want env override", cfg.OpenAIAPIKey)
	}
	if cfg.ConversationName != "night" {
		t.Fatalf("ConversationName = %q, want night", cfg.ConversationName)
	}
	if cfg.PitchShift != -3 {
		t.Fatalf("PitchShift = %d, want -3", cfg.PitchShift)
	}
	if cfg.UseMemory {
		t.Fatalf("UseMemory = true, want false")
	}
	if got := cfg.PlaybackTimeout(); got != time.Second {
		t.Fatalf("PlaybackTimeout() = %v, want 1s", got)
	}
}

func TestLoadMissingNameIsConfigError(t *testing.T) {
	setCoreEnvEmpty(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
}

func TestLoadRejectsOpenAIProviderWithoutKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CONVERSATION_NAME", "aiko")
	t.Setenv("CHAT_PROVIDER", "openai")

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
}

func TestLoadRejectsMalformedSettings(t *testing.T) {
	setCoreEnvEmpty(t)
	path := writeSettings(t, "{not json")
	_, err := Load(path)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
}

func TestLoadRejectsOutOfRangeIndexRate(t *testing.T) {
	setCoreEnvEmpty(t)
	path := writeSettings(t, sampleSettings)
	t.Setenv("RVC_INDEX_RATE", "1.5")
	if _, err := Load(path); !errors.Is(err, ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
}

func TestSummaryListsRVCSettings(t *testing.T) {
	setCoreEnvEmpty(t)
	cfg, err := Load(writeSettings(t, sampleSettings))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	out := cfg.Summary()
	for _, want := range []string{"------aiko------", "f0method = harvest", "rms_mix_rate = 0.3", "Answer briefly."} {
		if !strings.Contains(out, want) {
			t.Fatalf("Summary() missing %q:\n%s", want, out)
		}
	}
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"RVCCHAT_SETTINGS",
		"APP_LISTEN_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"CHAT_PROVIDER",
		"CHAT_HTTP_URL",
		"CHAT_USE_MEMORY",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_TEXT_MODEL",
		"OPENAI_REASONING_EFFORT",
		"OPENAI_VALIDATE_KEY",
		"SYSTEM_PROMPT",
		"TTS_PROVIDER",
		"TTS_MODEL",
		"TTS_VOICE",
		"TTS_INSTRUCTIONS",
		"TTS_TIMEOUT",
		"TTS_MAX_RETRIES",
		"RVC_BACKEND",
		"RVC_PYTHON",
		"RVC_API_URL",
		"RVC_DEVICE",
		"RVC_MODELS_DIR",
		"RVC_MODEL_FILE",
		"RVC_INDEX_FILE",
		"RVC_INDEX_RATE",
		"RVC_FILTER_RADIUS",
		"RVC_PROTECT",
		"RVC_PITCH_METHOD",
		"RVC_PITCH_SHIFT",
		"RVC_RESAMPLE_RATE",
		"RVC_RMS_MIX_RATE",
		"CONVERSATION_NAME",
		"AUDIO_INPUT_DIR",
		"AUDIO_OUTPUT_DIR",
		"PLAYBACK_POLL_INTERVAL",
		"PLAYBACK_MAX_ATTEMPTS",
		"PLAYER",
		"MEMORY_BACKEND",
		"MEMORY_DIR",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
	t.Setenv("RVCCHAT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}
