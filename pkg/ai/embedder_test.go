package ai

import (
	"context"
	"errors"
	"testing"
)

type fakeClient struct {
	vec       []float32
	err       error
	seen      []string
	batchSeen [][]string
}

func (f *fakeClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	f.seen = append(f.seen, string(input))
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	batch := make([]string, len(inputs))
	for i := range inputs {
		batch[i] = string(inputs[i])
	}
	f.batchSeen = append(f.batchSeen, batch)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeClient) ResetMetrics()            {}
func (f *fakeClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func TestEmbedderZeroVectorOnFailure(t *testing.T) {
	e := NewEmbedder(EmbedderParams{
		Client:     &fakeClient{err: errors.New("backend down")},
		Dimensions: 8,
	})

	vec := e.Embed(context.Background(), "some text")
	if len(vec) != 8 {
		t.Fatalf("vector length = %d, want 8", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Errorf("vec[%d] = %v, want 0", i, v)
		}
	}
}

func TestEmbedderFitsDimensions(t *testing.T) {
	e := NewEmbedder(EmbedderParams{
		Client:     &fakeClient{vec: []float32{1, 2, 3}},
		Dimensions: 5,
	})

	vec := e.Embed(context.Background(), "abc")
	want := []float32{1, 2, 3, 0, 0}
	if len(vec) != 5 {
		t.Fatalf("vector length = %d, want 5", len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	client := &fakeClient{vec: []float32{1}}
	e := NewEmbedder(EmbedderParams{Client: client, Dimensions: 4})

	vec := e.Embed(context.Background(), "   \n ")
	if len(vec) != 4 {
		t.Fatalf("vector length = %d, want 4", len(vec))
	}
	if len(client.seen) != 0 {
		t.Errorf("backend was called for empty input: %v", client.seen)
	}
}

func TestEmbedderNormalizesWhitespace(t *testing.T) {
	client := &fakeClient{vec: []float32{1, 2}}
	e := NewEmbedder(EmbedderParams{Client: client, Dimensions: 2})

	e.Embed(context.Background(), "  hello \n\t world  ")
	if len(client.seen) != 1 || client.seen[0] != "hello world" {
		t.Errorf("normalized input = %v, want [hello world]", client.seen)
	}
}

func TestEmbedderBatch(t *testing.T) {
	e := NewEmbedder(EmbedderParams{
		Client:     &fakeClient{err: errors.New("down")},
		Dimensions: 3,
	})

	vecs := e.EmbedAll(context.Background(), []string{"a", "b"})
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 3 {
			t.Errorf("vector %d length = %d, want 3", i, len(v))
		}
	}
}

func TestEmbedderCachesRepeatedInput(t *testing.T) {
	client := &fakeClient{vec: []float32{1, 2}}
	e := NewEmbedder(EmbedderParams{Client: client, Dimensions: 2})

	first := e.Embed(context.Background(), "hello world")
	second := e.Embed(context.Background(), "hello \n world")
	if len(client.seen) != 1 {
		t.Fatalf("backend called %d times, want 1", len(client.seen))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cached vector differs at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestEmbedderBatchSendsOnlyCacheMisses(t *testing.T) {
	client := &fakeClient{vec: []float32{1, 2}}
	e := NewEmbedder(EmbedderParams{Client: client, Dimensions: 2})

	e.Embed(context.Background(), "alpha")

	vecs := e.EmbedAll(context.Background(), []string{"alpha", "beta"})
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if len(client.batchSeen) != 1 {
		t.Fatalf("batch backend called %d times, want 1", len(client.batchSeen))
	}
	if got := client.batchSeen[0]; len(got) != 1 || got[0] != "beta" {
		t.Errorf("batch inputs = %v, want only the uncached text", got)
	}

	// A fully cached batch needs no backend call at all.
	e.EmbedAll(context.Background(), []string{"alpha", "beta"})
	if len(client.batchSeen) != 1 {
		t.Errorf("batch backend called again for cached inputs")
	}
}
