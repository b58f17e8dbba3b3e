package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/browser"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/fetch"
	"github.com/khanhnv2901/secora/internal/sqlprobe"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

// Config describes a production Scanner.
type Config struct {
	TLSTimeout     time.Duration
	TLSFingerprint checker.Fingerprint
	SoonExpiryDays int

	Fetch   fetch.Config
	Browser browser.Options

	SQLProbe bool
	// BlindSQL enables the time-based probe. It sends JSON bodies to the
	// target, so it is off unless asked for.
	BlindSQL     bool
	PayloadsFile string

	AI ai.Config

	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Build wires the Chrome-backed fetcher and probe, the TLS inspector and the
// configured recommender into a Scanner.
func Build(cfg Config) (*Scanner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bopts := cfg.Browser
	if bopts.Logger == nil {
		bopts.Logger = logger.Named("browser")
	}

	fcfg := cfg.Fetch
	fcfg.Browser = bopts
	fcfg.Logger = logger.Named("fetch")
	metrics := cfg.Metrics
	fetcher := fetch.New(fcfg, fetch.WithObserver(func(source fetch.Source, attempts int, err error) {
		if err == nil {
			metrics.ObserveFetch(string(source), attempts)
		}
	}))

	lib := sqlprobe.DefaultLibrary()
	if cfg.PayloadsFile != "" {
		loaded, err := sqlprobe.LoadLibrary(cfg.PayloadsFile)
		if err != nil {
			return nil, err
		}
		lib = loaded
	}

	c := Components{
		Inspector:      checker.NewInspector(cfg.TLSTimeout, cfg.TLSFingerprint, logger.Named("tls")),
		Fetcher:        fetcher,
		Metrics:        metrics,
		Logger:         logger,
		SoonExpiryDays: cfg.SoonExpiryDays,
		AITimeout:      cfg.AI.Timeout,
	}

	if cfg.SQLProbe {
		prober, err := sqlprobe.NewProber(sqlprobe.ChromeDriver(bopts), sqlprobe.Config{
			Library: lib,
			Logger:  logger.Named("sqlprobe"),
		})
		if err != nil {
			return nil, err
		}
		c.Prober = prober
	}
	if cfg.BlindSQL {
		c.Blind = sqlprobe.NewTimeBasedProbe(lib, logger.Named("sqlprobe"))
	}

	aiCfg := cfg.AI
	if aiCfg.Logger == nil {
		aiCfg.Logger = logger.Named("ai")
	}
	rec, err := ai.New(aiCfg)
	if err != nil {
		return nil, err
	}
	c.Recommender = rec

	return New(c), nil
}
