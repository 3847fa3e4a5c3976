// Package store keeps the active-collection pointer: for each session, the
// knowledge-base collection that queries should search. The pointer is
// replaced only after an ingestion fully succeeds, so readers always see
// either the previous collection or the new one.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSession is used for requests that carry no session id. A single
// client that never sends one gets "most recent upload wins" behaviour.
const DefaultSession = "default"

// maxSessionIDLen bounds client-supplied session ids.
const maxSessionIDLen = 128

var (
	// ErrNoActiveCollection is returned by Active when the session has never
	// completed an ingestion.
	ErrNoActiveCollection = errors.New("store: no active collection")

	// ErrInvalidSession is returned for session ids that are too long or
	// contain control characters.
	ErrInvalidSession = errors.New("store: invalid session id")
)

// ActiveCollection is the collection a session currently queries.
type ActiveCollection struct {
	SessionID  string
	Collection string
	ChunkCount int
	// Source is the uploaded file name, informational only.
	Source    string
	UpdatedAt time.Time
}

// CollectionStore persists active-collection pointers. Implementations must
// be safe for concurrent use; concurrent SetActive calls for one session
// resolve last-writer-wins.
type CollectionStore interface {
	// SetActive points ac.SessionID at ac.Collection and records the
	// ingestion in the history log.
	SetActive(ctx context.Context, ac ActiveCollection) error
	// Active returns the session's pointer or ErrNoActiveCollection.
	Active(ctx context.Context, sessionID string) (ActiveCollection, error)
	// Recent returns up to n logged ingestions across all sessions, newest first.
	Recent(ctx context.Context, n int) ([]ActiveCollection, error)
	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// NormalizeSession trims id, maps the empty id to DefaultSession and
// rejects ids that cannot be stored safely.
func NormalizeSession(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSession, nil
	}
	if len(id) > maxSessionIDLen {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidSession, maxSessionIDLen)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: contains control characters", ErrInvalidSession)
		}
	}
	return id, nil
}

// DefaultDBPath resolves ~/.kbrag/sessions.db, creating the directory.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".kbrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "sessions.db"), nil
}
