package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS stores artifacts as files under a root directory, one subdirectory per
// container.
type FS struct {
	root string
}

// Compile-time interface guard.
var _ Store = (*FS)(nil)

// NewFS creates a filesystem store rooted at root.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("blob: create root %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Upload writes data to root/container/key.
func (f *FS) Upload(_ context.Context, container, key string, data []byte, _ string) error {
	path, err := f.resolve(container, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("blob: create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("blob: write %s: %w", path, err)
	}
	return nil
}

// Download reads the object's bytes.
func (f *FS) Download(_ context.Context, container, key string) ([]byte, error) {
	path, err := f.resolve(container, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", path, err)
	}
	return data, nil
}

// resolve joins container and key under the root, rejecting anything that
// would escape it.
func (f *FS) resolve(container, key string) (string, error) {
	path := filepath.Join(f.root, container, key)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(f.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob: path %s/%s escapes root", container, key)
	}
	return path, nil
}
