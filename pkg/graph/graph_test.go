package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/ai"
	"github.com/stratum-kg/stratum/pkg/chunker"
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/store"
	"github.com/stratum-kg/stratum/pkg/store/memory"
)

// scriptedOracle serves a fixed payload for every chunk and counts calls.
type scriptedOracle struct {
	ai.Metrics

	mu          sync.Mutex
	calls       int
	completions int
	payload     ExtractionPayload
	completion  string
	err         error
}

func (o *scriptedOracle) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	o.mu.Lock()
	o.completions++
	o.mu.Unlock()
	return o.completion, nil
}

func (o *scriptedOracle) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	raw, err := json.Marshal(o.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (o *scriptedOracle) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (o *scriptedOracle) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *scriptedOracle) completionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completions
}

func acmePayload() ExtractionPayload {
	raw := `{
		"entities": [{
			"name": "Acme Corporation",
			"type": "Organization",
			"description": "A company that builds rockets for orbital launches.",
			"confidence": 0.9
		}],
		"relationships": []
	}`
	var p ExtractionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		panic(err)
	}
	return p
}

func newTestClient(st store.GraphStorage, oracle ai.GraphAIClient, override func(*Params)) *Client {
	params := Params{
		Store:    st,
		AIClient: oracle,
		Chunker:  chunker.Config{MinChunkSize: 1},
	}
	if override != nil {
		override(&params)
	}
	return NewClient(params)
}

func doc(id, content string) common.Document {
	return common.Document{
		ID:      id,
		Content: content,
		Status:  common.DocumentStatusPending,
		Metadata: common.DocumentMetadata{
			Filename:  id + ".txt",
			SizeBytes: len(content),
		},
	}
}

func TestProcessSingleEntity(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{payload: acmePayload()}
	client := newTestClient(st, oracle, nil)

	content := "Acme Corporation builds rockets."
	res, err := client.Process(ctx, doc("d1", content))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != common.DocumentStatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.ChunkCount != 1 {
		t.Fatalf("chunk count = %d, want 1", res.ChunkCount)
	}
	if len(res.Relationships) != 0 {
		t.Fatalf("relationships = %d, want 0", len(res.Relationships))
	}

	entities, err := st.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("stored entities = %d, want 1", len(entities))
	}
	e := entities[0]
	if e.ID != "acme_corporation" {
		t.Errorf("entity id = %q, want acme_corporation", e.ID)
	}
	if e.Name != "Acme Corporation" || e.Type != "Organization" {
		t.Errorf("entity = %s/%s, want Acme Corporation/Organization", e.Name, e.Type)
	}
	chunkID := util.ChunkID("d1", 0, 0, len(content))
	if _, ok := e.SourceChunkIDs[chunkID]; !ok {
		t.Errorf("entity missing chunk provenance %s, have %v", chunkID, e.SourceChunkIDs)
	}
	if _, ok := e.SourceDocumentIDs["d1"]; !ok {
		t.Errorf("entity missing document provenance d1")
	}
	if _, ok := e.Properties["qualityScore"]; !ok {
		t.Errorf("entity missing qualityScore property")
	}

	stored, err := st.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Status != common.DocumentStatusCompleted {
		t.Errorf("stored document status = %s, want completed", stored.Status)
	}
}

func TestProcessCacheHitSkipsOracle(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{payload: acmePayload()}
	client := newTestClient(st, oracle, nil)

	content := "Acme Corporation builds rockets."
	if _, err := client.Process(ctx, doc("d1", content)); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	res, err := client.Process(ctx, doc("d2", content))
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if got := oracle.callCount(); got != 1 {
		t.Fatalf("oracle calls = %d, want 1 (second chunk served from cache)", got)
	}
	if res.MergedCount != 1 {
		t.Errorf("merged count = %d, want 1", res.MergedCount)
	}

	entities, err := st.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("stored entities = %d, want 1 after merge", len(entities))
	}
	for _, docID := range []string{"d1", "d2"} {
		if _, ok := entities[0].SourceDocumentIDs[docID]; !ok {
			t.Errorf("merged entity missing provenance for %s", docID)
		}
	}
}

func TestProcessValidationFailures(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		override func(*Params)
	}{
		{name: "empty content", content: ""},
		{
			name:     "oversized document",
			content:  strings.Repeat("a", 200),
			override: func(p *Params) { p.MaxDocumentSize = 100 },
		},
		{name: "binary content", content: strings.Repeat("\x01\x02", 100)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			st := memory.NewBacking().Workspace("w1")
			oracle := &scriptedOracle{payload: acmePayload()}
			client := newTestClient(st, oracle, tc.override)

			res, err := client.Process(ctx, doc("d1", tc.content))
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if res.Status != common.DocumentStatusFailed {
				t.Errorf("status = %s, want failed", res.Status)
			}
			if len(res.Errors) == 0 {
				t.Errorf("expected error recorded in result")
			}
			if got := oracle.callCount(); got != 0 {
				t.Errorf("oracle calls = %d, want 0", got)
			}
			if entities, _ := st.GetEntities(ctx); len(entities) != 0 {
				t.Errorf("entities persisted despite validation failure")
			}
		})
	}
}

func TestProcessExtractionFailureDegrades(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{err: errors.New("model unavailable")}
	client := newTestClient(st, oracle, nil)

	res, err := client.Process(ctx, doc("d1", "Acme Corporation builds rockets."))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != common.DocumentStatusCompleted {
		t.Fatalf("status = %s, want completed despite oracle failure", res.Status)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a warning for the failed chunk")
	}
	if len(res.Entities) != 0 {
		t.Errorf("entities = %d, want 0", len(res.Entities))
	}

	stored, err := st.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Status != common.DocumentStatusCompleted {
		t.Errorf("stored document status = %s, want completed", stored.Status)
	}
}

func TestProcessCondensesMergedDescriptions(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")

	raw := `{
		"entities": [{
			"name": "Acme Corporation",
			"type": "Organization",
			"description": "A company that builds rockets.",
			"confidence": 0.9
		}, {
			"name": "ACME Corporation",
			"type": "Organization",
			"description": "An aerospace firm founded in 1985.",
			"confidence": 0.7
		}],
		"relationships": []
	}`
	var payload ExtractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}

	oracle := &scriptedOracle{
		payload:    payload,
		completion: "An aerospace company founded in 1985 that builds rockets.",
	}
	client := newTestClient(st, oracle, nil)

	res, err := client.Process(ctx, doc("d1", "Acme Corporation builds rockets."))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.MergedCount != 1 {
		t.Fatalf("merged count = %d, want 1", res.MergedCount)
	}
	if got := oracle.completionCount(); got != 1 {
		t.Fatalf("completion calls = %d, want 1", got)
	}

	entities, err := st.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("stored entities = %d, want 1", len(entities))
	}
	if entities[0].Description != oracle.completion {
		t.Errorf("description = %q, want the condensed version", entities[0].Description)
	}
}

func TestProcessWhitespaceOnlyCompletesWithoutChunks(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{payload: acmePayload()}
	// Default MinChunkSize drops the whitespace remainder.
	client := newTestClient(st, oracle, func(p *Params) { p.Chunker = chunker.Config{} })

	res, err := client.Process(ctx, doc("d1", "   \n\n   \n"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != common.DocumentStatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.ChunkCount != 0 {
		t.Errorf("chunk count = %d, want 0", res.ChunkCount)
	}
	if got := oracle.callCount(); got != 0 {
		t.Errorf("oracle calls = %d, want 0", got)
	}
}

func TestProcessStageLogOrder(t *testing.T) {
	ctx := context.Background()
	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{payload: acmePayload()}
	client := newTestClient(st, oracle, nil)

	res, err := client.Process(ctx, doc("d1", "Acme Corporation builds rockets."))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var completed []common.Stage
	for _, entry := range res.Log {
		if entry.Status == "completed" {
			completed = append(completed, entry.Stage)
		}
	}
	want := []common.Stage{
		common.StageValidating,
		common.StageChunking,
		common.StageExtracting,
		common.StageScoring,
		common.StageDeduplicating,
		common.StagePersisting,
		common.StageCompleted,
	}
	if len(completed) != len(want) {
		t.Fatalf("completed stages = %v, want %v", completed, want)
	}
	for i := range want {
		if completed[i] != want[i] {
			t.Fatalf("stage %d = %s, want %s", i, completed[i], want[i])
		}
	}
}

func TestProcessCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := memory.NewBacking().Workspace("w1")
	oracle := &scriptedOracle{payload: acmePayload()}
	client := newTestClient(st, oracle, nil)

	res, err := client.Process(ctx, doc("d1", "Acme Corporation builds rockets."))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Status != common.DocumentStatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}
