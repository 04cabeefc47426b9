package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSettings = `{
  "user": {"openAI_apiKey": ""},
  "model_description": ["You are Aiko."],
  "model_settings": {"openAI_text_model": "gpt-5-nano", "index_rate": 0.6},
  "model_files": {"name": "aiko.pth", "index": "aiko.index"}
}`

func setupEnv(t *testing.T) (settings, memDir string) {
	t.Helper()
	dir := t.TempDir()
	settings = filepath.Join(dir, "settings.json")
	if err := os.WriteFile(settings, []byte(testSettings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	memDir = filepath.Join(dir, "memory")
	t.Setenv("RVCCHAT_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CONVERSATION_NAME", "")
	t.Setenv("CHAT_PROVIDER", "mock")
	t.Setenv("MEMORY_BACKEND", "file")
	t.Setenv("MEMORY_DIR", memDir)
	return settings, memDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	settingsPath, listenAddr, keepMemory = "", "", false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSettingsCommandPrintsSummary(t *testing.T) {
	settings, _ := setupEnv(t)
	out, err := execute(t, "settings", "--settings", settings)
	if err != nil {
		t.Fatalf("settings error = %v", err)
	}
	for _, want := range []string{"------aiko------", "index_rate = 0.6", "You are Aiko."} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestForgetCommandClearsTranscript(t *testing.T) {
	settings, memDir := setupEnv(t)
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(memDir, "aiko.txt")
	if err := os.WriteFile(path, []byte("\n[user]:hi\n[You]:hello"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	out, err := execute(t, "forget", "--settings", settings)
	if err != nil {
		t.Fatalf("forget error = %v", err)
	}
	if !strings.Contains(out, "memory cleared for aiko") {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("transcript still present: %v", err)
	}
}

func TestReplayCommandNeedsSegments(t *testing.T) {
	settings, _ := setupEnv(t)
	t.Setenv("AUDIO_OUTPUT_DIR", t.TempDir())
	t.Setenv("PLAYER", "none")
	if _, err := execute(t, "replay", "--settings", settings); err == nil || !strings.Contains(err.Error(), "no segments") {
		t.Fatalf("replay error = %v, want no segments", err)
	}
}
