// Package tracing wires optional Langfuse tracing into every eino chat-model
// call made by the LLM generator.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

const defaultHost = "https://cloud.langfuse.com"

// Setup registers a global Langfuse callback handler when
// LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are both set. The returned
// flush func must run before exit; it is a no-op when tracing is disabled.
func Setup() (flush func(), enabled bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return func() {}, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
