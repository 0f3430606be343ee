package ops

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/seatwatch/internal/errors"
)

// ValidateDocumentPath checks the collector's output path before a run:
// .json extension, no ".." components, and neither the file nor its parent
// directory may be a symlink. The parent need not exist yet.
func ValidateDocumentPath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("document path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidRequest("document path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".json" {
		return errors.NewInvalidRequest("document path must have .json extension")
	}

	if info, err := os.Lstat(filepath.Dir(cleaned)); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("document directory must not be a symlink")
		}
		if !info.IsDir() {
			return errors.NewInvalidRequest("document directory is not a directory")
		}
	}

	if info, err := os.Lstat(cleaned); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("document path must not be a symlink")
		}
		if info.IsDir() {
			return errors.NewInvalidRequest("document path is a directory")
		}
	}

	return nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check forward slashes on all platforms (e.g., user input).
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
