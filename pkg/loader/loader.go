// Package loader resolves document sources to their raw text content.
// A source names where the bytes live (inline, local file, object store,
// web URL); the pipeline itself only ever sees the loaded content.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratum-kg/stratum/internal/util"
)

// SourceKind identifies where a document's content comes from.
type SourceKind string

const (
	SourceKindInline SourceKind = "inline"
	SourceKindFile   SourceKind = "file"
	SourceKindS3     SourceKind = "s3"
	SourceKindWeb    SourceKind = "web"
)

// Source points at document content to ingest. Inline sources carry the
// content directly; the other kinds carry a reference the matching Loader
// resolves.
type Source struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref,omitempty"`
	Text string     `json:"text,omitempty"`
}

// Loader resolves a source reference to raw content bytes.
// Implementations may cache by reference; loads of the same reference must
// be safe to issue concurrently.
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// CacheKey builds a stable cache key for a source reference.
func CacheKey(ref string) string {
	return util.ContentHash(ref)
}

// ErrUnsupportedSource is returned when no loader is registered for a
// source kind.
var ErrUnsupportedSource = errors.New("unsupported source kind")

// Resolver dispatches sources to the loader registered for their kind.
// A nil loader for a kind means that kind is not available in this
// deployment (e.g. no object store configured).
type Resolver struct {
	File Loader
	S3   Loader
	Web  Loader
}

// Load returns the content of the given source. Inline sources resolve
// without touching any backend.
func (r *Resolver) Load(ctx context.Context, src Source) ([]byte, error) {
	switch src.Kind {
	case SourceKindInline:
		return []byte(src.Text), nil
	case SourceKindFile:
		if r.File == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.Kind)
		}
		return r.File.Load(ctx, src.Ref)
	case SourceKindS3:
		if r.S3 == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.Kind)
		}
		return r.S3.Load(ctx, src.Ref)
	case SourceKindWeb:
		if r.Web == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.Kind)
		}
		return r.Web.Load(ctx, src.Ref)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Kind)
	}
}
