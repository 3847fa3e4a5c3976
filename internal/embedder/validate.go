package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/kbrag-go/internal/config"
)

// knownChatModelFragments identify chat/completion models, which produce
// poor or no embeddings.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"gemini-1.5",
	"gemini-2",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range knownChatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// WarnMisconfiguration logs a warning when EMBEDDING_MODEL names a chat
// model. It returns true when a warning was emitted.
func WarnMisconfiguration(log *slog.Logger) bool {
	model := config.Env("EMBEDDING_MODEL", "")
	if model == "" || !looksLikeChatModel(model) {
		return false
	}
	log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
		slog.String("model", model),
		slog.String("backend", Backend()),
		slog.String("hint", "use a dedicated embedding model e.g. all-minilm, text-embedding-004"),
	)
	return true
}
