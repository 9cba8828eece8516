package mcpserver

// SchemaContract describes the canonical annotation document format that
// LLM consumers must follow when importing predictions or recording
// verifications.
const SchemaContract = `# Hydrolabel Annotation Document Contract

Every annotation document stored in Hydrolabel MUST follow the unified
schema, version 2.0. Documents are JSON files ending in ` + "`" + `.json` + "`" + `.

## Structure

` + "```" + `json
{
  "schema_version": "2.0",
  "task_type": "whale_detection",
  "created_at": "2019-07-01T00:00:00Z",
  "model": { "model_id": "sha256-..." },
  "data_sources": [
    { "data_source_id": "SRC-1", "device_code": "ICLISTENHF1353" }
  ],
  "items": [
    {
      "item_id": "seg_000",
      "data_source_id": "SRC-1",
      "audio_start_time": "2019-06-30T00:04:58Z",
      "audio_end_time": "2019-06-30T00:05:38Z",
      "model_outputs": [
        { "class_hierarchy": "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale", "score": 0.87 }
      ],
      "verifications": []
    }
  ]
}
` + "```" + `

## Rules

1. **` + "`" + `schema_version` + "`" + ` must be "2.0".** Other versions are rejected.
2. **Prediction documents require provenance.** ` + "`" + `model.model_id` + "`" + `, at least one
   data source, and per-item ` + "`" + `audio_start_time` + "`" + `/` + "`" + `audio_end_time` + "`" + ` plus
   ` + "`" + `model_outputs` + "`" + ` are mandatory when the document carries model predictions.
3. **Labels are taxonomy paths.** Every ` + "`" + `class_hierarchy` + "`" + ` and every verification
   label must be a full path in the hydrophone sound taxonomy, levels joined
   by ` + "`" + ` > ` + "`" + ` (e.g. ` + "`" + `Anthropophony > Vessel` + "`" + `). Call ` + "`" + `get_taxonomy` + "`" + ` for the
   valid paths.
4. **Scores are in [0, 1].**
5. **Every item references a declared data source.** An ` + "`" + `item.data_source_id` + "`" + `
   that is not listed in ` + "`" + `data_sources` + "`" + ` is a validation error.
6. **Verifications are append-only.** Rounds are numbered from 1 with no gaps;
   a new round never rewrites an earlier one. The latest round's label
   decisions fully define the item's current labels.
7. **Label decisions** use ` + "`" + `"decision"` + "`" + ` of ` + "`" + `accepted` + "`" + `, ` + "`" + `rejected` + "`" + `, or
   ` + "`" + `added` + "`" + `. Accepted/rejected refer to model-proposed labels; added
   introduces one the model missed.
8. **Unknown fields are rejected** at the document, model, data source, item,
   model output, and verification levels. Free-form extras belong in
   ` + "`" + `spectrogram_config` + "`" + ` or item ` + "`" + `metadata` + "`" + `.
9. **Encoding** is UTF-8.

## Recording verifications

Use the ` + "`" + `record_verification` + "`" + ` tool rather than rewriting the document.
The service assigns the round number, stamps ` + "`" + `verified_at` + "`" + `, checks the
taxonomy, and keeps the search index in sync.
`
