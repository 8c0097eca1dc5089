package loader

import (
	"context"
	"errors"
	"testing"
)

type staticLoader struct{ data string }

func (l staticLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	return []byte(l.data + ":" + ref), nil
}

func TestResolverInline(t *testing.T) {
	r := &Resolver{}
	got, err := r.Load(context.Background(), Source{Kind: SourceKindInline, Text: "hello"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
}

func TestResolverDispatch(t *testing.T) {
	r := &Resolver{
		File: staticLoader{data: "file"},
		S3:   staticLoader{data: "s3"},
		Web:  staticLoader{data: "web"},
	}
	cases := []struct {
		kind SourceKind
		want string
	}{
		{SourceKindFile, "file:ref"},
		{SourceKindS3, "s3:ref"},
		{SourceKindWeb, "web:ref"},
	}
	for _, tc := range cases {
		got, err := r.Load(context.Background(), Source{Kind: tc.kind, Ref: "ref"})
		if err != nil {
			t.Fatalf("Load(%s): %v", tc.kind, err)
		}
		if string(got) != tc.want {
			t.Errorf("Load(%s) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestResolverUnconfiguredKind(t *testing.T) {
	r := &Resolver{}
	for _, kind := range []SourceKind{SourceKindFile, SourceKindS3, SourceKindWeb, SourceKind("carrier-pigeon")} {
		_, err := r.Load(context.Background(), Source{Kind: kind, Ref: "x"})
		if !errors.Is(err, ErrUnsupportedSource) {
			t.Errorf("Load(%s) err = %v, want ErrUnsupportedSource", kind, err)
		}
	}
}
