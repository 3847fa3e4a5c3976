package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value, want string
	}{
		{"GEMINI_API_KEY", "AIza-secret", "set"},
		{"GEMINI_API_KEY", "", "unset"},
		{"KBRAG_API_KEY", "token", "set"},
		{"MODEL_PROVIDER", "gemini", "gemini"},
		{"MODEL_PROVIDER", "", "unset"},
		{"NOT_TRACKED", "x", "x"},
	}
	for _, tc := range tests {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/kbrag.yaml"); got != "/tmp/kbrag.yaml" {
		t.Errorf("expected '/tmp/kbrag.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		if got := sanitiseConfigPath(home + "/.kbrag/config.yaml"); got != "~/.kbrag/config.yaml" {
			t.Errorf("expected '~/.kbrag/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIza-very-secret")
	t.Setenv("MODEL_PROVIDER", "gemini")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(log, "serve", "")

	if bytes.Contains(buf.Bytes(), []byte("AIza-very-secret")) {
		t.Fatalf("secret value leaked into audit log: %s", buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["command"] != "serve" {
		t.Errorf("command = %v, want serve", rec["command"])
	}
	if rec["GEMINI_API_KEY"] != "set" {
		t.Errorf("GEMINI_API_KEY = %v, want set", rec["GEMINI_API_KEY"])
	}
	if rec["MODEL_PROVIDER"] != "gemini" {
		t.Errorf("MODEL_PROVIDER = %v, want gemini", rec["MODEL_PROVIDER"])
	}
	if rec["config_file"] != "none" {
		t.Errorf("config_file = %v, want none", rec["config_file"])
	}
}
