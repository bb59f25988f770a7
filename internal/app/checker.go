package app

import (
	"context"
	"fmt"

	"github.com/samvad-hq/acmewire/internal/config"
	"github.com/samvad-hq/acmewire/internal/domain"
	"github.com/samvad-hq/acmewire/internal/journal"
	"github.com/samvad-hq/acmewire/internal/logger"
	"github.com/samvad-hq/acmewire/internal/probe"
	"github.com/samvad-hq/acmewire/pkg/directories"
	"github.com/samvad-hq/acmewire/pkg/httpclient"
)

const recentFailuresLimit = 20

// Summary is the result of a single check pass.
type Summary struct {
	Healthy        bool            `json:"healthy"`
	Reports        []domain.Report `json:"reports"`
	RecentFailures []journal.Entry `json:"recent_failures,omitempty"`
}

// Checker runs one probe pass over the configured directories without
// forwarding reports to notifiers. It is meant for cron jobs and CI gates.
type Checker struct {
	cfg          *config.Config
	dirs         []directories.Directory
	probeService *probe.Service
	log          logger.Logger
	store        journal.Store
}

// NewChecker builds a one-shot checker from config files.
func NewChecker(cfg *config.Config, log logger.Logger) (*Checker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	dirReg, err := directories.LoadRegistry(cfg.DirectoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load directories registry: %w", err)
	}
	log.InfoObj("directories registry loaded", "directories", dirReg.Enabled())

	store, err := journal.NewStore(cfg.JournalType, cfg.JournalPath, journal.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	agent := httpclient.NewAgent(
		httpclient.WithLogger(log),
		httpclient.WithUserAgent(cfg.UserAgent),
	)

	return &Checker{
		cfg:          cfg,
		dirs:         dirReg.Enabled(),
		probeService: probe.NewService(agent, nil, nil, log, store),
		log:          log,
		store:        store,
	}, nil
}

// Run probes every enabled directory once. The returned error is non-nil when
// any directory is unhealthy; the summary is populated either way.
func (c *Checker) Run(ctx context.Context) (Summary, error) {
	if c == nil || c.probeService == nil {
		return Summary{}, fmt.Errorf("checker is not initialized")
	}
	defer func() {
		if err := c.store.Close(); err != nil {
			c.log.ErrorObj("journal close failed", "error", err)
		}
	}()

	reports, runErr := c.probeService.Run(ctx, c.dirs)
	summary := Summary{Healthy: runErr == nil, Reports: reports}

	recent, err := c.store.Recent(recentFailuresLimit)
	if err != nil {
		c.log.WarnObj("journal read failed", "error", err)
	}
	summary.RecentFailures = recent

	c.log.InfoObj("check completed", "check_meta", map[string]any{
		"directories_count": len(c.dirs),
		"healthy":           summary.Healthy,
		"recent_failures":   len(recent),
	})
	return summary, runErr
}
