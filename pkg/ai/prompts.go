package ai

// ExtractionPrompt asks the model to extract entities and relationships
// from one chunk of text. Placeholders, in order: allowed entity types,
// existing entity context, chunk text.
const ExtractionPrompt = `
# Task Context
You are an assistant that extracts typed entities and typed relationships from a passage of text to build a knowledge graph.

# Background Data
Allowed entity types:
%s

Entities already known to the graph (reuse their exact names when the passage refers to them):
%s

# Detailed Task Description & Rules
- Extract only entities that are explicitly mentioned in the passage.
- Every entity needs a name, one of the allowed types, a one-to-two sentence description grounded in the passage, and a confidence between 0 and 1.
- Extract a relationship only when the passage states or clearly implies a connection between two extracted or known entities.
- Relationship source and target must be entity names from this extraction or from the known entity list.
- Prefer specific relationship types ("deploys", "queries", "authored") over generic ones ("related_to").
- Weight expresses the strength of the connection between 0 and 1.
- Do not invent entities or relationships that the passage does not support.

# Immediate Task Description or Request
Extract the entities and relationships from the following passage.

%s

# Output Formatting
Return a JSON object with this structure:
{
  "entities": [
    {"name": "...", "type": "...", "description": "...", "confidence": 0.9}
  ],
  "relationships": [
    {"source": "...", "target": "...", "type": "...", "description": "...", "weight": 0.8, "bidirectional": false, "confidence": 0.9}
  ]
}
`

// DescriptionPrompt asks the model to condense multiple partial
// descriptions of one entity into a single coherent one. Placeholders:
// entity name, collected descriptions.
const DescriptionPrompt = `
# Task Context
You are an assistant that maintains entity descriptions in a knowledge graph.

# Background Data
Entity: %s
Collected descriptions from different documents:
%s

# Detailed Task Description & Rules
- Merge the collected descriptions into one description of at most three sentences.
- Keep only facts present in the collected descriptions.
- Resolve repetition and contradictions in favor of the more specific statement.

# Output Formatting
Return only the merged description as plain text, no preamble.
`
