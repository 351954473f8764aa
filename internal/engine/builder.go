package engine

import (
	"strings"
)

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Shards sets the primary shard count.
func (b *IndexBuilder) Shards(n int) *IndexBuilder {
	b.def.Shards = n
	return b
}

// Replicas sets the replica count.
func (b *IndexBuilder) Replicas(n int) *IndexBuilder {
	b.def.Replicas = n
	return b
}

// Analyzer defines a custom analyzer.
func (b *IndexBuilder) Analyzer(name, tokenizer string, filters ...string) *IndexBuilder {
	b.def.Analyzers = append(b.def.Analyzers, Analyzer{
		Name:      name,
		Tokenizer: tokenizer,
		Filters:   filters,
	})
	return b
}

// Keyword adds KEYWORD fields.
func (b *IndexBuilder) Keyword(names ...string) *IndexBuilder {
	for _, name := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldKeyword})
	}
	return b
}

// Text adds a TEXT field analyzed with analyzer ("" for the engine default).
func (b *IndexBuilder) Text(name, analyzer string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:     name,
		Type:     FieldText,
		Analyzer: analyzer,
	})
	return b
}

// TextWithKeyword adds a TEXT field with a <name>.keyword subfield for exact and
// prefix matching.
func (b *IndexBuilder) TextWithKeyword(name, analyzer string, ignoreAbove int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:            name,
		Type:            FieldText,
		Analyzer:        analyzer,
		KeywordSubfield: true,
		IgnoreAbove:     ignoreAbove,
	})
	return b
}

// Float adds FLOAT fields.
func (b *IndexBuilder) Float(names ...string) *IndexBuilder {
	for _, name := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldFloat})
	}
	return b
}

// Boolean adds a BOOLEAN field.
func (b *IndexBuilder) Boolean(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldBoolean})
	return b
}

// Date adds DATE fields.
func (b *IndexBuilder) Date(names ...string) *IndexBuilder {
	for _, name := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldDate})
	}
	return b
}

// Stored adds an object field that is kept in _source but not indexed.
func (b *IndexBuilder) Stored(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldObject, Disabled: true})
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// MustBuild calls Build and panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a compact debug representation.
func (idx *IndexDefinition) String() string {
	parts := []string{"PUT", idx.Name}
	for _, a := range idx.Analyzers {
		parts = append(parts, "ANALYZER", a.Name+"("+a.Tokenizer+"|"+strings.Join(a.Filters, ",")+")")
	}
	parts = append(parts, "MAPPINGS")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		desc := f.Name + ":" + string(f.Type)
		if f.Analyzer != "" {
			desc += "/" + f.Analyzer
		}
		if f.KeywordSubfield {
			desc += "+keyword"
		}
		if f.Disabled {
			desc += "(stored)"
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, " ")
}
