package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/status"
)

// Store persists the status document. Only the collector writes.
type Store interface {
	// Load returns the prior document, or (nil, nil) if none has been written yet.
	Load(ctx context.Context) (*status.Document, error)

	// Save replaces the document wholesale.
	Save(ctx context.Context, doc status.Document) error
}

// FileStore keeps the document as an indented JSON file.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads and validates the document. A missing file is a first run, not
// an error. Anything else that prevents a trustworthy read is PERSISTENCE_FAILED,
// so the caller aborts instead of overwriting state it could not interpret.
func (s *FileStore) Load(ctx context.Context) (*status.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewPersistenceFailed(s.Path, err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.NewPersistenceFailed(s.Path, err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, errors.NewPersistenceFailed(s.Path, err)
	}
	return doc, nil
}

// Save validates doc and writes it atomically: temp file in the same
// directory, fsync, rename. On failure the previous file is left untouched.
func (s *FileStore) Save(ctx context.Context, doc status.Document) error {
	if err := ctx.Err(); err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}

	data, err := Encode(doc)
	if err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewPersistenceFailed(s.Path, fmt.Errorf("create directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewPersistenceFailed(s.Path, fmt.Errorf("generate temp file name: %w", err))
	}
	tempPath := s.Path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}
	if err := file.Close(); err != nil {
		file = nil
		return errors.NewPersistenceFailed(s.Path, err)
	}
	file = nil

	if err := os.Rename(tempPath, s.Path); err != nil {
		return errors.NewPersistenceFailed(s.Path, err)
	}
	success = true
	return nil
}

// Encode validates doc and renders the persisted format: 2-space indented
// JSON, history always an array.
func Encode(doc status.Document) ([]byte, error) {
	if doc.History == nil {
		doc.History = []status.Snapshot{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// persistedDocument defers decoding of previous and history so that
// documents written by older collectors can be repaired on load.
type persistedDocument struct {
	Current    status.Snapshot   `json:"current"`
	Previous   json.RawMessage   `json:"previous"`
	History    []json.RawMessage `json:"history"`
	LastUpdate time.Time         `json:"lastUpdate"`
}

// Decode parses and validates a persisted document. current must be valid.
// A previous that is not a valid snapshot (older collectors stored the whole
// prior document there) is treated as absent, and history entries that are
// failed or malformed are dropped before the bound is applied.
func Decode(data []byte) (*status.Document, error) {
	var raw persistedDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewInvalidDocument(fmt.Sprintf("parse status document: %v", err))
	}

	doc := status.Document{
		Current:    raw.Current,
		Previous:   decodeSnapshot(raw.Previous),
		History:    make([]status.Snapshot, 0, min(len(raw.History), status.HistoryLimit)),
		LastUpdate: raw.LastUpdate,
	}
	for _, entry := range raw.History {
		if snap := decodeSnapshot(entry); snap != nil && !snap.Failed() {
			doc.History = append(doc.History, *snap)
		}
	}
	if len(doc.History) > status.HistoryLimit {
		doc.History = doc.History[len(doc.History)-status.HistoryLimit:]
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// decodeSnapshot returns nil for null, non-snapshot, or invalid input.
func decodeSnapshot(data json.RawMessage) *status.Snapshot {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var snap status.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	if snap.Validate() != nil {
		return nil
	}
	return &snap
}
