package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/status"
)

// maxDocumentBytes bounds a fetched document. 50 history entries fit in well under this.
const maxDocumentBytes = 1 << 20

// Source is the read-only side of the document, used by the viewer and MCP
// server. It never writes.
type Source interface {
	Fetch(ctx context.Context) (*status.Document, error)

	// Location describes where documents come from, for display.
	Location() string
}

// NewSource returns an HTTPSource for http(s) locations and a FileSource otherwise.
func NewSource(location string, client *http.Client) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTPSource{URL: location, Client: client}
	}
	return &FileSource{Path: location}
}

// FileSource reads the document from the local filesystem.
type FileSource struct {
	Path string
}

// Fetch reads and validates the document. A missing file is NOT_FOUND.
func (s *FileSource) Fetch(ctx context.Context) (*status.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFound(s.Path)
		}
		return nil, errors.NewPersistenceFailed(s.Path, err)
	}
	return Decode(data)
}

// Location returns the file path.
func (s *FileSource) Location() string { return s.Path }

// HTTPSource fetches the document from a published URL (e.g. GitHub Pages).
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Fetch GETs and validates the document. Non-200 responses are errors; 404 is NOT_FOUND.
func (s *HTTPSource) Fetch(ctx context.Context) (*status.Document, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("bad source url: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("fetch %s: %w", s.URL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFound(s.URL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewInternal(fmt.Errorf("fetch %s: unexpected status %s", s.URL, resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read %s: %w", s.URL, err))
	}
	return Decode(data)
}

// Location returns the URL.
func (s *HTTPSource) Location() string { return s.URL }
