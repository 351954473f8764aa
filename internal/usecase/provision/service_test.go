package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/engine/enginetest"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/repository/indexcache"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func newTestService(t *testing.T) (*Service, *enginetest.Memory, *indexcache.Memory) {
	t.Helper()
	mem := enginetest.NewMemory()
	cache := indexcache.NewMemory(0, 0)
	return New(mem, cache, zap.NewNop()), mem, cache
}

var utecDev = tenant.NewDescriptor("UTEC", "dev", "http://es:9201")

func TestEnsureIndex_CreatesOnceThenCaches(t *testing.T) {
	s, mem, cache := newTestService(t)
	ctx := context.Background()

	if err := s.EnsureIndex(ctx, utecDev); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !mem.HasIndex(engine.TargetFor(utecDev)) {
		t.Fatal("index not created")
	}
	if !cache.Contains(ctx, "records_utec_dev") {
		t.Fatal("index not memoized")
	}

	for i := 0; i < 3; i++ {
		if err := s.EnsureIndex(ctx, utecDev); err != nil {
			t.Fatalf("EnsureIndex: %v", err)
		}
	}
	if got := mem.Calls(engine.OpIndexExists); got != 1 {
		t.Errorf("exists probes = %d, want 1", got)
	}
	if got := mem.Calls(engine.OpCreateIndex); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
}

func TestEnsureIndex_ExistingIndexIsNotRecreated(t *testing.T) {
	s, mem, _ := newTestService(t)
	ctx := context.Background()
	def, _ := RecordSchema(utecDev.IndexName, SchemaOptions{})
	if _, err := mem.CreateIndex(ctx, engine.TargetFor(utecDev), def); err != nil {
		t.Fatal(err)
	}

	if err := s.EnsureIndex(ctx, utecDev); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if got := mem.Calls(engine.OpCreateIndex); got != 1 {
		t.Errorf("creates = %d, want only the setup one", got)
	}
}

// raceEngine reports the index missing but answers "already exists" on create,
// as when another worker created it between probe and create.
type raceEngine struct {
	*enginetest.Memory
}

func (r raceEngine) IndexExists(context.Context, engine.Target) (bool, error) { return false, nil }

func (r raceEngine) CreateIndex(context.Context, engine.Target, *engine.IndexDefinition) (engine.CreateOutcome, error) {
	return engine.IndexAlreadyExists, nil
}

func TestEnsureIndex_AlreadyExistsIsSuccess(t *testing.T) {
	cache := indexcache.NewMemory(0, 0)
	s := New(raceEngine{enginetest.NewMemory()}, cache, zap.NewNop())

	if err := s.EnsureIndex(context.Background(), utecDev); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !cache.Contains(context.Background(), utecDev.IndexName) {
		t.Error("already-existing index should be memoized")
	}
}

func TestEnsureIndex_Failures(t *testing.T) {
	tests := []struct {
		name          string
		op            string
		err           error
		wantRetryable bool
	}{
		{"probe unavailable", engine.OpIndexExists, fmt.Errorf("x: %w", domain.ErrEngineUnavailable), true},
		{"create unavailable", engine.OpCreateIndex, fmt.Errorf("x: %w", domain.ErrEngineUnavailable), true},
		{"create rejected", engine.OpCreateIndex, fmt.Errorf("x: %w", domain.ErrEngineRejected), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem, cache := newTestService(t)
			mem.FailOps[tt.op] = tt.err

			err := s.EnsureIndex(context.Background(), utecDev)
			if !errors.Is(err, domain.ErrIndexProvision) {
				t.Fatalf("err = %v, want ErrIndexProvision", err)
			}
			if got := domain.IsRetryable(err); got != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.wantRetryable)
			}
			if cache.Contains(context.Background(), utecDev.IndexName) {
				t.Error("failed provisioning must not be memoized")
			}
		})
	}
}

func TestForget_ReprobesEngine(t *testing.T) {
	s, mem, _ := newTestService(t)
	ctx := context.Background()

	if err := s.EnsureIndex(ctx, utecDev); err != nil {
		t.Fatal(err)
	}
	mem.DropAll()
	s.Forget(ctx, utecDev.IndexName)

	if err := s.EnsureIndex(ctx, utecDev); err != nil {
		t.Fatal(err)
	}
	if !mem.HasIndex(engine.TargetFor(utecDev)) {
		t.Error("index should be recreated after Forget")
	}
	if got := mem.Calls(engine.OpCreateIndex); got != 2 {
		t.Errorf("creates = %d, want 2", got)
	}
}

func TestEnsureIndex_ConcurrentCallers(t *testing.T) {
	s, mem, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureIndex(ctx, utecDev)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureIndex: %v", err)
		}
	}
	if got := len(mem.Docs(engine.TargetFor(utecDev))); got != 0 {
		t.Errorf("docs = %d", got)
	}
	if !mem.HasIndex(engine.TargetFor(utecDev)) {
		t.Error("index missing")
	}
}

func TestWarm_AttemptsAllAndJoinsErrors(t *testing.T) {
	s, mem, _ := newTestService(t)
	ds := []tenant.Descriptor{
		tenant.NewDescriptor("UTEC", "dev", "http://es:9201"),
		tenant.NewDescriptor("MIT", "dev", "http://es:9202"),
		tenant.NewDescriptor("EPFL", "dev", "http://es:9203"),
	}
	if err := s.Warm(context.Background(), ds); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	for _, d := range ds {
		if !mem.HasIndex(engine.TargetFor(d)) {
			t.Errorf("index %s not provisioned", d.IndexName)
		}
	}

	s2, mem2, _ := newTestService(t)
	mem2.FailOps[engine.OpIndexExists] = domain.ErrEngineUnavailable
	err := s2.Warm(context.Background(), ds)
	if !errors.Is(err, domain.ErrIndexProvision) {
		t.Fatalf("err = %v, want joined provisioning errors", err)
	}
	if got := mem2.Calls(engine.OpIndexExists); got != len(ds) {
		t.Errorf("probes = %d, want %d", got, len(ds))
	}
}

func TestRecreate(t *testing.T) {
	s, mem, _ := newTestService(t)
	ctx := context.Background()
	target := engine.TargetFor(utecDev)

	if err := s.EnsureIndex(ctx, utecDev); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.IndexDocument(ctx, target, "c-1", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Recreate(ctx, utecDev); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if len(mem.Docs(target)) != 0 {
		t.Error("recreated index should be empty")
	}
}

func TestRecordSchema(t *testing.T) {
	def, err := RecordSchema("records_utec_prod", SchemaOptions{Shards: 1, Replicas: 1})
	if err != nil {
		t.Fatalf("RecordSchema: %v", err)
	}
	types := make(map[string]engine.FieldType)
	for _, f := range def.Fields {
		types[f.Name] = f.Type
	}
	want := map[string]engine.FieldType{
		"record_id": engine.FieldKeyword, "status": engine.FieldKeyword, "stage": engine.FieldKeyword,
		"name": engine.FieldText, "search_blob": engine.FieldText,
		"price": engine.FieldFloat, "published": engine.FieldBoolean, "created_at": engine.FieldDate,
		"extra": engine.FieldObject,
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Errorf("%s = %q, want %q", name, types[name], typ)
		}
	}

	if _, err := RecordSchema("Records_UTEC", SchemaOptions{}); err == nil {
		t.Error("upper-case index name should be rejected")
	}
}
