package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/bootstrap"
	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/search/request"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/repository/deadletter"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// outcomeLine is one replayed event as printed by replay.
type outcomeLine struct {
	stream.Outcome
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func replayCommand(c *cli.Context, p *bootstrap.Pipeline, logger *zap.Logger) error {
	events, err := loadEvents(c, p)
	if err != nil {
		return err
	}
	if src := c.String("source"); src != "" {
		for i := range events {
			events[i] = events[i].WithSourceRef(src)
		}
	}

	d, err := p.Dispatcher("replay")
	if err != nil {
		return err
	}
	defer d.Close()

	report, dispatchErr := d.Dispatch(c.Context, events)
	if dispatchErr != nil && !errors.Is(dispatchErr, domain.ErrRedeliver) {
		return dispatchErr
	}

	enc := json.NewEncoder(c.App.Writer)
	for _, o := range report.Outcomes {
		if err := enc.Encode(outcomeLine{Outcome: o, Error: o.Error(), Retryable: o.Retryable()}); err != nil {
			return err
		}
	}
	logger.Info("Replay finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("processed", report.Processed),
		zap.Int("ignored", report.Ignored),
		zap.Int("failed", report.Failed),
	)

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d events failed", report.Failed, len(events))
	}
	return nil
}

func loadEvents(c *cli.Context, p *bootstrap.Pipeline) ([]stream.Event, error) {
	switch {
	case c.String("file") != "":
		data, err := os.ReadFile(filepath.Clean(c.String("file")))
		if err != nil {
			return nil, fmt.Errorf("read batch: %w", err)
		}
		return stream.DecodePayload(data)

	case c.String("dead-letter") != "":
		data, err := os.ReadFile(filepath.Clean(c.String("dead-letter")))
		if err != nil {
			return nil, fmt.Errorf("read dead letter: %w", err)
		}
		e, err := deadletter.Decode(data)
		if err != nil {
			return nil, err
		}
		return []stream.Event{e}, nil

	case c.String("s3-key") != "":
		archive, ok := p.Sink.(*deadletter.S3)
		if !ok {
			return nil, fmt.Errorf("--s3-key needs dead_letter.driver: s3")
		}
		e, err := archive.Fetch(c.Context, c.String("s3-key"))
		if err != nil {
			return nil, err
		}
		return []stream.Event{e}, nil
	}
	return nil, fmt.Errorf("one of --file, --dead-letter or --s3-key is required")
}

func searchCommand(c *cli.Context, p *bootstrap.Pipeline, logger *zap.Logger) error {
	stage := p.Stage()
	if s := c.String("stage"); s != "" {
		stage = tenant.Stage(s)
	}

	req, err := request.New(c.String("query"), strategy.Strategy(c.String("strategy")),
		c.Int("from"), c.Int("limit"), c.String("tenant"))
	if err != nil {
		return err
	}

	var opts []searchuc.Option
	for s, d := range p.Config.Timeouts() {
		opts = append(opts, searchuc.WithTimeout(s, d))
	}
	page, err := searchuc.New(p.Router, p.Engine, stage, logger, opts...).Search(c.Context, req)
	if err != nil {
		return err
	}

	type hit struct {
		ID      string  `json:"record_id"`
		Score   float64 `json:"score"`
		Name    string  `json:"name"`
		Snippet string  `json:"snippet,omitempty"`
	}
	out := struct {
		Index        string `json:"index"`
		Total        int    `json:"total"`
		IndexMissing bool   `json:"index_missing,omitempty"`
		Hits         []hit  `json:"hits"`
	}{Index: page.Index, Total: page.Total, IndexMissing: page.IndexMissing, Hits: []hit{}}
	for _, h := range page.Hits {
		out.Hits = append(out.Hits, hit{ID: h.RecordID(), Score: h.Score(), Name: h.Fields().Name, Snippet: h.Snippet()})
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func provisionCommand(c *cli.Context, p *bootstrap.Pipeline, _ *zap.Logger) error {
	stage := p.Stage()
	if s := c.String("stage"); s != "" {
		stage = tenant.Stage(s)
	}

	var descs []tenant.Descriptor
	if id := c.String("tenant"); id != "" {
		d, err := p.Router.Descriptor(id, stage)
		if err != nil {
			return err
		}
		descs = []tenant.Descriptor{d}
	} else {
		if !p.Router.HasStage(stage) {
			return fmt.Errorf("%w: unknown stage %q", domain.ErrStageUnresolved, stage)
		}
		descs = p.Router.Descriptors(stage)
	}

	if c.Bool("recreate") {
		if c.String("tenant") == "" {
			return fmt.Errorf("--recreate requires --tenant")
		}
		if err := p.Provisioner.Recreate(c.Context, descs[0]); err != nil {
			return err
		}
	} else if err := p.Provisioner.Warm(c.Context, descs); err != nil {
		return err
	}

	for _, d := range descs {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", d.TenantID, d.Endpoint, d.IndexName)
	}
	return nil
}
