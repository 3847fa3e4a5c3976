package commands

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/kbrag-go/internal/extract"
	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

func TestBuildVectorStore(t *testing.T) {
	t.Setenv("VECTOR_STORE", "chromem")
	t.Setenv("VECTOR_STORE_PATH", "")

	vs, name, closeFn, err := buildVectorStore(logging.Discard())
	if err != nil {
		t.Fatalf("buildVectorStore() error = %v", err)
	}
	defer closeFn()
	if name != "chromem" {
		t.Errorf("name = %q", name)
	}
	if _, ok := vs.(*rag.ChromemStore); !ok {
		t.Errorf("store type = %T", vs)
	}

	t.Setenv("VECTOR_STORE", "pinecone")
	if _, _, _, err := buildVectorStore(logging.Discard()); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestBuildSessionStore(t *testing.T) {
	t.Setenv("KBRAG_SESSION_DB", "disabled")
	cs, closeFn, err := buildSessionStore(logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	if _, ok := cs.(*store.MemoryStore); !ok {
		t.Errorf("disabled: store type = %T", cs)
	}

	t.Setenv("KBRAG_SESSION_DB", filepath.Join(t.TempDir(), "sessions.db"))
	cs, closeFn, err = buildSessionStore(logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := cs.(*store.SQLiteStore); !ok {
		t.Errorf("path: store type = %T", cs)
	}
	if err := cs.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestDescribeIngestError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{&ingestion.IngestionError{Stage: ingestion.StageExtract, Err: &extract.ExtractionError{Path: "x.pdf", Err: errors.New("bad xref")}}, "could not read PDF: bad xref"},
		{&ingestion.IngestionError{Stage: ingestion.StageEmbed, Err: errors.New("refused")}, "embed step failed: refused"},
		{errors.New("plain"), "plain"},
	}
	for _, tc := range cases {
		if got := describeIngestError(tc.err); !strings.Contains(got, tc.want) {
			t.Errorf("describeIngestError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
