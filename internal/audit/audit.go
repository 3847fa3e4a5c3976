// Package audit writes one structured record per CLI command invocation
// describing the effective configuration. Secret values are reduced to
// "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type auditEntry struct {
	key    string
	secret bool
}

// auditKeys is the ordered list of env vars included in every record.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false},
	{"GEMINI_MODEL", false},
	{"GEMINI_API_KEY", true},
	{"GOOGLE_API_KEY", true},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"ARK_MODEL", false},
	{"ARK_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_STORE", false},
	{"VECTOR_STORE_PATH", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_API_KEY", true},
	{"RAG_CHUNK_SIZE", false},
	{"RAG_TOP_K", false},
	{"KBRAG_SESSION_DB", false},
	{"KBRAG_API_KEY", true},
	{"KBRAG_CORS_ORIGIN", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool, len(auditKeys))
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart records the command name, the config file it resolved and
// the sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set"/"unset" for secret keys and the value (or
// "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath abbreviates the home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
