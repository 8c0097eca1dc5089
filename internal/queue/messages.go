package queue

import (
	"github.com/stratum-kg/stratum/pkg/common"
	"github.com/stratum-kg/stratum/pkg/loader"
)

// IngestMessage asks the worker to run one document through the pipeline.
// Source points at the content; for payloads uploaded to the object store
// it carries the object key instead of the text itself.
type IngestMessage struct {
	Workspace  string                  `json:"workspace"`
	DocumentID string                  `json:"document_id"`
	Metadata   common.DocumentMetadata `json:"metadata"`
	Source     loader.Source           `json:"source"`
}

// DeleteMessage asks the worker to remove a document and its graph
// contribution. ObjectKey is set when the content was uploaded to the
// object store and must be cleaned up too. An empty DocumentID purges
// the whole workspace.
type DeleteMessage struct {
	Workspace  string `json:"workspace"`
	DocumentID string `json:"document_id"`
	ObjectKey  string `json:"object_key,omitempty"`
}
