package provision

import "github.com/kailas-cloud/indexsync/internal/engine"

// AnalyzerName is the custom analyzer applied to every full-text field.
const AnalyzerName = "record_analyzer"

// SchemaOptions tunes index settings that vary per deployment.
type SchemaOptions struct {
	Shards   int
	Replicas int
}

// RecordSchema returns the fixed index definition for record documents.
func RecordSchema(index string, opts SchemaOptions) (*engine.IndexDefinition, error) {
	return engine.NewIndex(index).
		Shards(opts.Shards).
		Replicas(opts.Replicas).
		Analyzer(AnalyzerName, "standard", "lowercase", "asciifolding", "stop").
		Keyword("record_id", "tenant_id", "level", "category", "status", "stage", "tags").
		TextWithKeyword("name", AnalyzerName, 256).
		Text("description", AnalyzerName).
		Text("instructor", AnalyzerName).
		Text("search_blob", AnalyzerName).
		Float("duration_hours", "price").
		Boolean("published").
		Date("created_at", "modified_at").
		Stored("extra").
		Build()
}
