package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore persists uploaded and generated binary assets on local disk and
// serves them under /files/{name} from the public URL.
type FileStore struct {
	basePath  string
	publicURL string
}

func NewFileStore(basePath, publicURL string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &FileStore{
		basePath:  basePath,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// BasePath is the on-disk directory the router serves as /files/.
func (s *FileStore) BasePath() string { return s.basePath }

// Upload writes data under a collision-free name derived from suggestedName
// and returns its public URL.
func (s *FileStore) Upload(data []byte, suggestedName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store an empty file")
	}

	name := fmt.Sprintf("%s%s", uuid.New().String(), sanitizeExt(suggestedName))
	path := filepath.Join(s.basePath, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return fmt.Sprintf("%s/files/%s", s.publicURL, name), nil
}

// ReadLocal reads a previously stored file by its bare name. Path elements
// are rejected so callers cannot escape the storage directory.
func (s *FileStore) ReadLocal(name string) ([]byte, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	return os.ReadFile(filepath.Join(s.basePath, name))
}

func sanitizeExt(suggestedName string) string {
	ext := strings.ToLower(filepath.Ext(suggestedName))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
