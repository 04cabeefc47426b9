package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfig marks missing or invalid settings. It is fatal at startup.
var ErrConfig = errors.New("configuration error")

// Config contains all runtime settings for the voice chat loop.
type Config struct {
	SettingsPath     string
	ListenAddr       string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	ChatProvider    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TextModel       string
	ReasoningEffort string
	SystemPrompt    string
	UseMemory       bool
	ChatHTTPURL     string
	ChatHTTPStrict  bool
	ValidateAPIKey  bool

	TTSProvider     string
	TTSModel        string
	TTSVoice        string
	TTSInstructions string
	TTSTimeout      time.Duration
	TTSMaxRetries   int
	TTSFallback     string

	RVCBackend   string
	RVCPython    string
	RVCAPIURL    string
	RVCDevice    string
	RVCAutoStart bool
	ModelsDir    string
	ModelFile    string
	IndexFile    string
	IndexRate    float64
	FilterRadius int
	Protect      float64
	PitchMethod  string
	PitchShift   int
	ResampleRate int
	RMSMixRate   float64

	ConversationName string
	AudioInputDir    string
	AudioOutputDir   string

	PlaybackPollInterval time.Duration
	PlaybackMaxAttempts  int
	Player               string

	MemoryBackend string
	MemoryDir     string
	DatabaseURL   string
}

const defaultTTSInstructions = "Speak like a tsundere but not too angry more like in a mocking way. Speak only in english even foreign words"

// settingsFile mirrors the settings.json layout used by existing installs.
type settingsFile struct {
	User struct {
		OpenAIAPIKey string `json:"openAI_apiKey"`
	} `json:"user"`
	ModelDescription []string `json:"model_description"`
	ModelSettings    struct {
		OpenAITextModel string   `json:"openAI_text_model"`
		IndexRate       *float64 `json:"index_rate"`
		FilterRadius    *int     `json:"filter_radius"`
		Protect         *float64 `json:"protect"`
		F0Method        string   `json:"f0method"`
		F0UpKey         *int     `json:"f0up_key"`
		ResampleSR      *int     `json:"resample_sr"`
		RMSMixRate      *float64 `json:"rms_mix_rate"`
	} `json:"model_settings"`
	ModelFiles struct {
		Name  string `json:"name"`
		Index string `json:"index"`
	} `json:"model_files"`
}

// Load reads .env, then settings.json, then environment overrides, and applies safe defaults.
// An empty settingsPath falls back to RVCCHAT_SETTINGS or "settings.json".
func Load(settingsPath string) (Config, error) {
	if err := godotenv.Load(envOrDefault("RVCCHAT_ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load env file: %v", ErrConfig, err)
	}
	if strings.TrimSpace(settingsPath) == "" {
		settingsPath = envOrDefault("RVCCHAT_SETTINGS", "settings.json")
	}

	cfg := Config{
		SettingsPath:         settingsPath,
		ListenAddr:           stringsTrimSpace("APP_LISTEN_ADDR"),
		ShutdownTimeout:      10 * time.Second,
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "rvcchat"),
		ChatProvider:         envOrDefault("CHAT_PROVIDER", "auto"),
		TextModel:            "gpt-5-nano",
		ReasoningEffort:      envOrDefault("OPENAI_REASONING_EFFORT", "minimal"),
		UseMemory:            true,
		ValidateAPIKey:       true,
		TTSProvider:          envOrDefault("TTS_PROVIDER", "auto"),
		TTSModel:             envOrDefault("TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:             envOrDefault("TTS_VOICE", "coral"),
		TTSFallback:          envOrDefault("TTS_FALLBACK", ""),
		TTSInstructions:      envOrDefault("TTS_INSTRUCTIONS", defaultTTSInstructions),
		TTSTimeout:           60 * time.Second,
		TTSMaxRetries:        2,
		RVCBackend:           envOrDefault("RVC_BACKEND", "cli"),
		RVCPython:            envOrDefault("RVC_PYTHON", "python3"),
		RVCAPIURL:            envOrDefault("RVC_API_URL", "http://127.0.0.1:5050"),
		RVCDevice:            envOrDefault("RVC_DEVICE", "cuda:0"),
		RVCAutoStart:         true,
		ModelsDir:            envOrDefault("RVC_MODELS_DIR", "models"),
		IndexRate:            0.75,
		FilterRadius:         3,
		Protect:              0.33,
		PitchMethod:          "rmvpe",
		AudioInputDir:        envOrDefault("AUDIO_INPUT_DIR", "audio_input"),
		AudioOutputDir:       envOrDefault("AUDIO_OUTPUT_DIR", "audio_output"),
		PlaybackPollInterval: 500 * time.Millisecond,
		PlaybackMaxAttempts:  360,
		Player:               envOrDefault("PLAYER", "speaker"),
		MemoryBackend:        envOrDefault("MEMORY_BACKEND", "file"),
		MemoryDir:            envOrDefault("MEMORY_DIR", "memory"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ChatHTTPURL:          stringsTrimSpace("CHAT_HTTP_URL"),
		OpenAIBaseURL:        stringsTrimSpace("OPENAI_BASE_URL"),
	}

	if err := cfg.applySettingsFile(settingsPath); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applySettingsFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var s settingsFile
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	c.OpenAIAPIKey = trimSpace(s.User.OpenAIAPIKey)
	if len(s.ModelDescription) > 0 {
		c.SystemPrompt = strings.Join(s.ModelDescription, "\n")
	}
	if v := trimSpace(s.ModelSettings.OpenAITextModel); v != "" {
		c.TextModel = v
	}
	ms := s.ModelSettings
	if ms.IndexRate != nil {
		c.IndexRate = *ms.IndexRate
	}
	if ms.FilterRadius != nil {
		c.FilterRadius = *ms.FilterRadius
	}
	if ms.Protect != nil {
		c.Protect = *ms.Protect
	}
	if v := trimSpace(ms.F0Method); v != "" {
		c.PitchMethod = v
	}
	if ms.F0UpKey != nil {
		c.PitchShift = *ms.F0UpKey
	}
	if ms.ResampleSR != nil {
		c.ResampleRate = *ms.ResampleSR
	}
	if ms.RMSMixRate != nil {
		c.RMSMixRate = *ms.RMSMixRate
	}
	c.ModelFile = trimSpace(s.ModelFiles.Name)
	c.IndexFile = trimSpace(s.ModelFiles.Index)
	return nil
}

func (c *Config) applyEnv() error {
	if v := stringsTrimSpace("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := stringsTrimSpace("OPENAI_TEXT_MODEL"); v != "" {
		c.TextModel = v
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	if v := stringsTrimSpace("RVC_MODEL_FILE"); v != "" {
		c.ModelFile = v
	}
	if v := stringsTrimSpace("RVC_INDEX_FILE"); v != "" {
		c.IndexFile = v
	}
	if v := stringsTrimSpace("RVC_PITCH_METHOD"); v != "" {
		c.PitchMethod = v
	}

	var err error
	if c.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if c.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", c.TTSTimeout); err != nil {
		return err
	}
	if c.PlaybackPollInterval, err = durationFromEnv("PLAYBACK_POLL_INTERVAL", c.PlaybackPollInterval); err != nil {
		return err
	}
	if c.PlaybackMaxAttempts, err = intFromEnv("PLAYBACK_MAX_ATTEMPTS", c.PlaybackMaxAttempts); err != nil {
		return err
	}
	if c.TTSMaxRetries, err = intFromEnv("TTS_MAX_RETRIES", c.TTSMaxRetries); err != nil {
		return err
	}
	if c.PitchShift, err = intFromEnv("RVC_PITCH_SHIFT", c.PitchShift); err != nil {
		return err
	}
	if c.FilterRadius, err = intFromEnv("RVC_FILTER_RADIUS", c.FilterRadius); err != nil {
		return err
	}
	if c.ResampleRate, err = intFromEnv("RVC_RESAMPLE_RATE", c.ResampleRate); err != nil {
		return err
	}
	if c.IndexRate, err = floatFromEnv("RVC_INDEX_RATE", c.IndexRate); err != nil {
		return err
	}
	if c.Protect, err = floatFromEnv("RVC_PROTECT", c.Protect); err != nil {
		return err
	}
	if c.RMSMixRate, err = floatFromEnv("RVC_RMS_MIX_RATE", c.RMSMixRate); err != nil {
		return err
	}
	if c.UseMemory, err = boolFromEnv("CHAT_USE_MEMORY", c.UseMemory); err != nil {
		return err
	}
	if c.ValidateAPIKey, err = boolFromEnv("OPENAI_VALIDATE_KEY", c.ValidateAPIKey); err != nil {
		return err
	}
	if c.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", c.AllowAnyOrigin); err != nil {
		return err
	}
	if c.ChatHTTPStrict, err = boolFromEnv("CHAT_HTTP_STRICT", c.ChatHTTPStrict); err != nil {
		return err
	}
	if c.RVCAutoStart, err = boolFromEnv("RVC_API_AUTOSTART", c.RVCAutoStart); err != nil {
		return err
	}

	c.ConversationName = strings.TrimSuffix(filepath.Base(c.ModelFile), filepath.Ext(c.ModelFile))
	if v := stringsTrimSpace("CONVERSATION_NAME"); v != "" {
		c.ConversationName = v
	}
	return nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	if c.ConversationName == "" || c.ConversationName == "." {
		return fmt.Errorf("%w: model_files.name (or CONVERSATION_NAME) is required", ErrConfig)
	}
	if strings.TrimSpace(c.TextModel) == "" {
		return fmt.Errorf("%w: model_settings.openAI_text_model is required", ErrConfig)
	}
	if strings.EqualFold(c.ChatProvider, "openai") && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: CHAT_PROVIDER=openai but no OpenAI API key is set", ErrConfig)
	}
	if strings.EqualFold(c.TTSProvider, "openai") && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: TTS_PROVIDER=openai but no OpenAI API key is set", ErrConfig)
	}
	if strings.EqualFold(c.ChatProvider, "http") && c.ChatHTTPURL == "" {
		return fmt.Errorf("%w: CHAT_PROVIDER=http requires CHAT_HTTP_URL", ErrConfig)
	}
	if strings.EqualFold(c.MemoryBackend, "postgres") && c.DatabaseURL == "" {
		return fmt.Errorf("%w: MEMORY_BACKEND=postgres requires DATABASE_URL", ErrConfig)
	}
	if c.PlaybackPollInterval <= 0 {
		return fmt.Errorf("%w: PLAYBACK_POLL_INTERVAL must be positive", ErrConfig)
	}
	if c.PlaybackMaxAttempts <= 0 {
		return fmt.Errorf("%w: PLAYBACK_MAX_ATTEMPTS must be positive", ErrConfig)
	}
	if c.TTSMaxRetries < 0 {
		return fmt.Errorf("%w: TTS_MAX_RETRIES must be >= 0", ErrConfig)
	}
	if c.IndexRate < 0 || c.IndexRate > 1 {
		return fmt.Errorf("%w: index_rate must be within [0,1]", ErrConfig)
	}
	if c.Protect < 0 || c.Protect > 0.5 {
		return fmt.Errorf("%w: protect must be within [0,0.5]", ErrConfig)
	}
	if c.RMSMixRate < 0 || c.RMSMixRate > 1 {
		return fmt.Errorf("%w: rms_mix_rate must be within [0,1]", ErrConfig)
	}
	if c.FilterRadius < 0 {
		return fmt.Errorf("%w: filter_radius must be >= 0", ErrConfig)
	}
	return nil
}

// PlaybackTimeout is the per-segment wait bound.
func (c Config) PlaybackTimeout() time.Duration {
	return time.Duration(c.PlaybackMaxAttempts) * c.PlaybackPollInterval
}

// ModelPath resolves the RVC model file inside ModelsDir.
func (c Config) ModelPath() string {
	if c.ModelFile == "" || filepath.IsAbs(c.ModelFile) {
		return c.ModelFile
	}
	return filepath.Join(c.ModelsDir, c.ModelFile)
}

// IndexPath resolves the RVC feature index inside ModelsDir.
func (c Config) IndexPath() string {
	if c.IndexFile == "" || filepath.IsAbs(c.IndexFile) {
		return c.IndexFile
	}
	return filepath.Join(c.ModelsDir, c.IndexFile)
}

// Summary renders the human readable settings overview printed by `rvcchat settings`.
func (c Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "------%s------\n", c.ConversationName)
	fmt.Fprintf(&b, "Using: %s\n", c.SettingsPath)
	fmt.Fprintf(&b, "Language model: %s\n", c.TextModel)
	fmt.Fprintf(&b, "Voice conversion backend: %s\n\n", c.RVCBackend)
	b.WriteString("------RVC settings------\n")
	fmt.Fprintf(&b, "index_rate = %v\n", c.IndexRate)
	fmt.Fprintf(&b, "filter_radius = %d\n", c.FilterRadius)
	fmt.Fprintf(&b, "protect = %v\n", c.Protect)
	fmt.Fprintf(&b, "f0method = %s\n", c.PitchMethod)
	fmt.Fprintf(&b, "f0up_key = %d\n", c.PitchShift)
	fmt.Fprintf(&b, "resample_sr = %d\n", c.ResampleRate)
	fmt.Fprintf(&b, "rms_mix_rate = %v\n", c.RMSMixRate)
	b.WriteString("----model description---\n")
	b.WriteString(c.SystemPrompt)
	b.WriteString("\n")
	return b.String()
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s parse error: %v", ErrConfig, key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s parse error: %v", ErrConfig, key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s parse error: %v", ErrConfig, key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s parse error: expected bool", ErrConfig, key)
	}
}
