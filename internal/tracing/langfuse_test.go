package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf-x")

	flush, enabled := Setup()
	if enabled {
		t.Fatal("expected tracing to stay disabled when the public key is missing")
	}
	if flush == nil {
		t.Fatal("flush must never be nil")
	}
	flush()
}
