// Package fs loads document content from a local directory.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSLoader reads files below a fixed root directory. References are
// interpreted relative to the root; references escaping it are rejected.
type FSLoader struct {
	root string
}

func NewFSLoader(root string) *FSLoader {
	return &FSLoader{root: filepath.Clean(root)}
}

func (l *FSLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(l.root, filepath.Clean("/"+ref))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("reference %q escapes loader root", ref)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}
