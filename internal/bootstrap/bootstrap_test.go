package bootstrap

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/config"
	"github.com/kailas-cloud/indexsync/internal/domain/attr"
	"github.com/kailas-cloud/indexsync/internal/domain/search/request"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/engine/enginetest"
	"github.com/kailas-cloud/indexsync/internal/repository/deadletter"
	"github.com/kailas-cloud/indexsync/internal/repository/indexcache"
	"github.com/kailas-cloud/indexsync/internal/transport/identity"
	"github.com/kailas-cloud/indexsync/internal/usecase/health"
)

func testConfig() config.Config {
	cfg := config.Config{
		Stage: "prod",
		Engine: config.EngineConfig{BaseURL: "http://search.internal:9200"},
		Tenants: []config.TenantConfig{
			{ID: "UTEC", Port: 9201},
			{ID: "MIT", Port: 9202},
		},
		Auth: config.AuthConfig{Mode: "none"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewPipeline_Defaults(t *testing.T) {
	p, err := NewPipelineWithEngine(context.Background(), testConfig(), enginetest.NewMemory(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewPipelineWithEngine: %v", err)
	}
	defer p.Close()

	if _, ok := p.Cache.(*indexcache.Memory); !ok {
		t.Errorf("cache = %T, want memory", p.Cache)
	}
	if p.CachePinger != nil {
		t.Error("memory cache has nothing to ping")
	}
	if _, ok := p.Sink.(*deadletter.Log); !ok {
		t.Errorf("sink = %T, want log", p.Sink)
	}
	if p.Stage() != "prod" {
		t.Errorf("stage = %s", p.Stage())
	}
}

func TestNewPipeline_NoCacheNoSink(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Driver = "none"
	cfg.DeadLetter.Driver = "none"

	p, err := NewPipelineWithEngine(context.Background(), cfg, enginetest.NewMemory(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, ok := p.Cache.(indexcache.Nop); !ok {
		t.Errorf("cache = %T, want nop", p.Cache)
	}
	if p.Sink != nil {
		t.Errorf("sink = %T, want none", p.Sink)
	}
}

func TestNewPipeline_BadRouting(t *testing.T) {
	cfg := testConfig()
	cfg.Tenants = nil
	if _, err := NewPipelineWithEngine(context.Background(), cfg, enginetest.NewMemory(), zap.NewNop()); err == nil {
		t.Error("expected error")
	}
}

func TestPipeline_IngestThenSearch(t *testing.T) {
	mem := enginetest.NewMemory()
	p, err := NewPipelineWithEngine(context.Background(), testConfig(), mem, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	d, err := p.Dispatcher("test")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	img := attr.Record{
		"tenant_id": attr.S("UTEC"),
		"record_id": attr.S("c-1"),
		"name":      attr.S("Compilers"),
	}
	if _, err := d.Dispatch(context.Background(), []stream.Event{
		stream.NewEvent(stream.KindInsert, img, nil, "cdc.records-prod", "1"),
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	req, err := request.New("compilers", strategy.Fulltext, 0, 10, "UTEC")
	if err != nil {
		t.Fatal(err)
	}
	page, err := p.Search().Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 1 || page.Index != "records_utec_prod" {
		t.Errorf("page = %+v", page)
	}
}

func TestPipeline_WarmAndHealth(t *testing.T) {
	mem := enginetest.NewMemory()
	p, err := NewPipelineWithEngine(context.Background(), testConfig(), mem, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	for _, idx := range []string{"records_utec_prod", "records_mit_prod"} {
		found := false
		for _, ep := range p.Router.Endpoints() {
			if mem.HasIndex(engine.Target{Endpoint: ep, Index: idx}) {
				found = true
			}
		}
		if !found {
			t.Errorf("index %s not provisioned", idx)
		}
	}

	report := p.Health().Check(context.Background())
	if report.Status != health.Healthy || len(report.Checks) != 2 {
		t.Errorf("health = %+v", report)
	}
}

func TestNewValidator(t *testing.T) {
	v, err := NewValidator(config.AuthConfig{Mode: "none"})
	if err != nil || v != nil {
		t.Errorf("none = %v, %v", v, err)
	}

	v, err = NewValidator(config.AuthConfig{Mode: "remote", ValidateURL: "http://auth"})
	if _, ok := v.(*identity.Remote); !ok || err != nil {
		t.Errorf("remote = %T, %v", v, err)
	}

	v, err = NewValidator(config.AuthConfig{Mode: "jwt", JWTSecret: "x", CacheSize: 8, CacheTTLSec: 30})
	if _, ok := v.(*identity.Cached); !ok || err != nil {
		t.Errorf("cached jwt = %T, %v", v, err)
	}

	if _, err := NewValidator(config.AuthConfig{Mode: "jwt"}); err == nil {
		t.Error("jwt without secret should fail")
	}
	if _, err := NewValidator(config.AuthConfig{Mode: "saml"}); err == nil {
		t.Error("unknown mode should fail")
	}
}
