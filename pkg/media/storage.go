package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chatbridge/internal/constants"

	"github.com/google/uuid"
)

// Storage persists attachment bytes under a single upload directory.
// Downloaded webhook media is keyed by its channel media ID; web uploads
// get a generated name so clients cannot choose paths.
type Storage interface {
	SaveDownloaded(mediaID, mimeType string, r io.Reader) (string, error)
	SaveUpload(originalFilename, contentType string, r io.Reader) (string, error)
}

type storage struct {
	dir string
}

func NewStorage(dir string) (Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &storage{dir: dir}, nil
}

// SaveDownloaded stores channel-hosted media fetched during webhook
// ingestion. The extension comes from the static MIME table; unknown types
// are stored without one.
func (s *storage) SaveDownloaded(mediaID, mimeType string, r io.Reader) (string, error) {
	name := sanitizeFilename(mediaID)
	if name == "" {
		return "", fmt.Errorf("invalid media ID %q", mediaID)
	}
	return s.write(name+constants.ExtensionForMimeType(mimeType), r)
}

// SaveUpload stores a file posted through the chat API under a generated
// name, deriving the extension from the declared content type and falling
// back to the original filename's extension.
func (s *storage) SaveUpload(originalFilename, contentType string, r io.Reader) (string, error) {
	ext := constants.ExtensionForMimeType(contentType)
	if ext == "" {
		if cleaned := sanitizeFilename(strings.TrimPrefix(filepath.Ext(originalFilename), ".")); cleaned != "" {
			ext = "." + cleaned
		}
	}
	return s.write(uuid.New().String()+ext, r)
}

func (s *storage) write(name string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path) // #nosec G304 - name is sanitized or generated
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

// sanitizeFilename strips anything that could navigate outside the upload
// directory: path separators, traversal sequences, control characters.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
