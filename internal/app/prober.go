package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samvad-hq/acmewire/internal/config"
	"github.com/samvad-hq/acmewire/internal/journal"
	"github.com/samvad-hq/acmewire/internal/logger"
	"github.com/samvad-hq/acmewire/internal/metrics"
	"github.com/samvad-hq/acmewire/internal/probe"
	"github.com/samvad-hq/acmewire/pkg/directories"
	"github.com/samvad-hq/acmewire/pkg/httpclient"
	"github.com/samvad-hq/acmewire/pkg/notifiers"
)

// Prober is the long-running probe runtime. It owns the directory registry,
// the ACME agent, the notifier fanout and the failure journal, and runs probe
// passes on a fixed interval.
type Prober struct {
	cfg           *config.Config
	dirs          []directories.Directory
	fanout        *notifiers.Fanout
	probeService  *probe.Service
	metrics       *metrics.Metrics
	probeInterval time.Duration
	log           logger.Logger
	store         journal.Store
}

// NewProber builds a prober runtime from config files.
func NewProber(ctx context.Context, cfg *config.Config, log logger.Logger) (*Prober, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dirReg, err := directories.LoadRegistry(cfg.DirectoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load directories registry: %w", err)
	}
	dirs := dirReg.Enabled()
	dirIDs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		dirIDs = append(dirIDs, d.ID)
	}
	log.InfoObj("directories registry loaded", "directories_meta", map[string]any{
		"count": len(dirIDs),
		"ids":   dirIDs,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := journal.NewStore(cfg.JournalType, cfg.JournalPath, journal.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	log.InfoObj("journal initialized", "journal_config", map[string]any{
		"type":                     cfg.JournalType,
		"path":                     cfg.JournalPath,
		"entry_ttl_seconds":        int(cfg.JournalTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.JournalCleanupInterval.Seconds()),
	})

	m := metrics.New()
	agent := httpclient.NewAgent(
		httpclient.WithLogger(log),
		httpclient.WithUserAgent(cfg.UserAgent),
		httpclient.WithRoundTripper(m.InstrumentRoundTripper),
	)

	return &Prober{
		cfg:           cfg,
		dirs:          dirs,
		fanout:        fanout,
		probeService:  probe.NewService(agent, fanout, m, log, store),
		metrics:       m,
		probeInterval: cfg.ProbeInterval,
		log:           log,
		store:         store,
	}, nil
}

// buildFanout instantiates enabled notifiers. An empty notifiers_file means
// reports are only logged and journaled.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*notifiers.Fanout, error) {
	if cfg.NotifiersFile == "" {
		log.InfoObj("no notifiers file configured; reports will not be forwarded", "notifiers_meta", map[string]any{
			"count": 0,
		})
		return notifiers.NewFanout(nil), nil
	}

	notifierReg, err := notifiers.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := notifierReg.Enabled()
	clients, err := notifiers.BuildAll(ctx, notifiers.DefaultBuilders(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, n := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   n.ID,
			"type": n.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})
	return notifiers.NewFanout(clients), nil
}

// Run starts the probe loop until the context is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	if p == nil || p.probeService == nil {
		return fmt.Errorf("prober is not initialized")
	}
	defer p.close()

	if p.cfg.MetricsAddr != "" {
		stop := p.serveMetrics()
		defer stop()
	}

	if len(p.dirs) == 0 {
		p.log.WarnObj("no directories enabled; prober idle", "directories_file", p.cfg.DirectoriesFile)
		<-ctx.Done()
		p.log.InfoObj("probe loop exiting", "reason", ctx.Err())
		return nil
	}

	p.log.InfoObj("probe loop starting", "prober_state", map[string]any{
		"directories_count": len(p.dirs),
		"notifiers_count":   p.fanout.Size(),
		"probe_interval":    p.probeInterval.String(),
	})

	if err := p.RunOnce(ctx); err != nil {
		p.log.ErrorObj("initial probe failed", "error", err)
	}

	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.InfoObj("probe loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.ErrorObj("scheduled probe failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single probe pass across all enabled directories.
func (p *Prober) RunOnce(ctx context.Context) error {
	start := time.Now()
	p.log.InfoObj("probe started", "probe_meta", map[string]any{
		"directories_count": len(p.dirs),
		"started_at":        start.UTC(),
	})
	reports, err := p.probeService.Run(ctx, p.dirs)
	healthy := 0
	for _, r := range reports {
		if r.Healthy {
			healthy++
		}
	}
	p.log.InfoObj("probe completed", "probe_meta", map[string]any{
		"directories_count": len(p.dirs),
		"healthy_count":     healthy,
		"elapsed_ms":        time.Since(start).Milliseconds(),
	})
	return err
}

// serveMetrics exposes the Prometheus registry and returns a shutdown func.
func (p *Prober) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.metrics.Handler())
	srv := &http.Server{
		Addr:              p.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		p.log.InfoObj("metrics server listening", "metrics_addr", p.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.ErrorObj("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			p.log.ErrorObj("metrics server shutdown failed", "error", err)
		}
	}
}

// close releases the journal and notifier clients, logging any errors encountered.
func (p *Prober) close() {
	if p == nil {
		return
	}
	if p.fanout != nil {
		if err := p.fanout.Close(); err != nil {
			p.log.ErrorObj("notifier close failed", "error", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.log.ErrorObj("journal close failed", "error", err)
		}
	}
}
