// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

// Compile-time check: Memory implements engine.Engine.
var _ engine.Engine = (*Memory)(nil)

// Memory keeps indices in maps. Search matches a document when any "query" or
// "value" string found in the request's query tree is a substring of its search_blob.
type Memory struct {
	mu      sync.Mutex
	indices map[engine.Target]map[string]json.RawMessage
	calls   map[string]int

	// FailOps injects an error per op name (engine.OpIndex, ...).
	FailOps map[string]error
	// FailIDs injects an error for writes of a document id.
	FailIDs map[string]error
	// LastSearch is the most recent search body.
	LastSearch []byte
}

// NewMemory creates an empty engine.
func NewMemory() *Memory {
	return &Memory{
		indices: make(map[engine.Target]map[string]json.RawMessage),
		calls:   make(map[string]int),
		FailOps: make(map[string]error),
		FailIDs: make(map[string]error),
	}
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of invocations across all ops.
func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Docs returns the stored document ids of an index, sorted.
func (m *Memory) Docs(t engine.Target) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.indices[t]))
	for id := range m.indices[t] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Doc returns a stored document.
func (m *Memory) Doc(t engine.Target, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.indices[t][id]
	return d, ok
}

// HasIndex reports whether the index exists.
func (m *Memory) HasIndex(t engine.Target) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indices[t]
	return ok
}

// DropAll removes every index, simulating an external deletion.
func (m *Memory) DropAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indices = make(map[engine.Target]map[string]json.RawMessage)
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	return m.FailOps[op]
}

func missing(op, index string) error {
	return &engine.Error{Op: op, Status: 404, Type: engine.TypeIndexNotFound, Reason: "no such index [" + index + "]",
		Err: domain.ErrEngineUnavailable}
}

// Ping implements engine.Pinger.
func (m *Memory) Ping(_ context.Context, _ tenant.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter(engine.OpPing)
}

// IndexExists implements engine.IndexManager.
func (m *Memory) IndexExists(_ context.Context, t engine.Target) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(engine.OpIndexExists); err != nil {
		return false, err
	}
	_, ok := m.indices[t]
	return ok, nil
}

// CreateIndex implements engine.IndexManager.
func (m *Memory) CreateIndex(_ context.Context, t engine.Target, def *engine.IndexDefinition) (engine.CreateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(engine.OpCreateIndex); err != nil {
		return 0, err
	}
	if err := def.Validate(); err != nil {
		return 0, err
	}
	if _, ok := m.indices[t]; ok {
		return engine.IndexAlreadyExists, nil
	}
	m.indices[t] = make(map[string]json.RawMessage)
	return engine.IndexCreated, nil
}

// DropIndex implements engine.IndexManager.
func (m *Memory) DropIndex(_ context.Context, t engine.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(engine.OpDropIndex); err != nil {
		return err
	}
	delete(m.indices, t)
	return nil
}

// IndexDocument implements engine.DocumentWriter.
func (m *Memory) IndexDocument(_ context.Context, t engine.Target, id string, body []byte) (engine.WriteOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeCheck(engine.OpIndex, id); err != nil {
		return 0, err
	}
	docs, ok := m.indices[t]
	if !ok {
		return 0, missing(engine.OpIndex, t.Index)
	}
	_, had := docs[id]
	docs[id] = append(json.RawMessage(nil), body...)
	if had {
		return engine.DocumentUpdated, nil
	}
	return engine.DocumentCreated, nil
}

// DeleteDocument implements engine.DocumentWriter.
func (m *Memory) DeleteDocument(_ context.Context, t engine.Target, id string) (engine.DeleteOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeCheck(engine.OpDelete, id); err != nil {
		return 0, err
	}
	docs := m.indices[t]
	if _, ok := docs[id]; !ok {
		return engine.DocumentNotFound, nil
	}
	delete(docs, id)
	return engine.DocumentDeleted, nil
}

func (m *Memory) writeCheck(op, id string) error {
	if err := m.enter(op); err != nil {
		return err
	}
	return m.FailIDs[id]
}

// Search implements engine.Searcher.
func (m *Memory) Search(_ context.Context, t engine.Target, body []byte) (*engine.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(engine.OpSearch); err != nil {
		return nil, err
	}
	m.LastSearch = append([]byte(nil), body...)

	docs, ok := m.indices[t]
	if !ok {
		return &engine.SearchResult{IndexMissing: true}, nil
	}

	var req struct {
		Query json.RawMessage `json:"query"`
		From  int             `json:"from"`
		Size  *int            `json:"size"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	var tree any
	if len(req.Query) > 0 {
		if err := json.Unmarshal(req.Query, &tree); err != nil {
			return nil, err
		}
	}
	terms := collectTerms(tree, "", nil)

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []engine.SearchHit
	for _, id := range ids {
		var doc struct {
			SearchBlob string `json:"search_blob"`
			Status     string `json:"status"`
		}
		_ = json.Unmarshal(docs[id], &doc)
		if doc.Status != "" && doc.Status != "active" {
			continue
		}
		if matches(doc.SearchBlob, terms) {
			matched = append(matched, engine.SearchHit{ID: id, Score: 1, Source: docs[id]})
		}
	}

	size := 10
	if req.Size != nil {
		size = *req.Size
	}
	start := min(req.From, len(matched))
	end := min(start+size, len(matched))
	return &engine.SearchResult{Total: len(matched), TookMillis: 1, Hits: matched[start:end]}, nil
}

func collectTerms(node any, key string, acc []string) []string {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			acc = collectTerms(child, k, acc)
		}
	case []any:
		for _, child := range v {
			acc = collectTerms(child, key, acc)
		}
	case string:
		if key == "query" || key == "value" {
			term := strings.ToLower(strings.Trim(v, "*"))
			term = strings.ReplaceAll(term, `\`, "")
			if term != "" {
				acc = append(acc, term)
			}
		}
	}
	return acc
}

func matches(blob string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	blob = strings.ToLower(blob)
	for _, t := range terms {
		if strings.Contains(blob, t) {
			return true
		}
	}
	return false
}
