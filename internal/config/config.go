// Package config loads the ledger configuration: YAML on disk, strict
// field checking, defaults, and validation against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration.
type Config struct {
	Database  Database  `yaml:"database" json:"database"`
	Log       Log       `yaml:"log" json:"log"`
	Reconcile Reconcile `yaml:"reconcile" json:"reconcile"`
	Retry     Retry     `yaml:"retry" json:"retry"`
	Pager     Pager     `yaml:"pager" json:"pager"`
	Sweep     Sweep     `yaml:"sweep" json:"sweep"`
}

type Database struct {
	Path string `yaml:"path" json:"path"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Reconcile holds the trade type labels matched during reconciliation.
type Reconcile struct {
	BuyType  string `yaml:"buy_type" json:"buy_type"`
	SellType string `yaml:"sell_type" json:"sell_type"`
}

// Retry configures the ledger's attempt policy. An empty
// ReclaimStaleAfter disables reclaiming abandoned processing entries.
type Retry struct {
	MaxAttempts       int    `yaml:"max_attempts" json:"max_attempts"`
	RetryFailed       bool   `yaml:"retry_failed" json:"retry_failed"`
	ReclaimStaleAfter string `yaml:"reclaim_stale_after" json:"reclaim_stale_after"`
}

type Pager struct {
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// Sweep configures the stale-claim reporter. Schedule uses cron syntax,
// including descriptors such as "@every 1m". FailAfter is how long an
// attempt must have been running before sweep --fail may fail it; a
// younger attempt may still be placing its order.
type Sweep struct {
	Schedule  string `yaml:"schedule" json:"schedule"`
	FailAfter string `yaml:"fail_after" json:"fail_after"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:  Database{Path: "ledger.db"},
		Log:       Log{Level: "info", Format: "text"},
		Reconcile: Reconcile{BuyType: "buy", SellType: "sell"},
		Retry:     Retry{MaxAttempts: 1},
		Pager:     Pager{MaxLimit: 200},
		Sweep:     Sweep{Schedule: "@every 1m", FailAfter: "5m"},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path validates and returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema and parses the
// fields CUE cannot check.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data := ctx.Encode(c)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := c.Retry.staleAfter(); err != nil {
		return fmt.Errorf("invalid config: retry.reclaim_stale_after: %w", err)
	}
	if _, err := positiveDuration(c.Sweep.FailAfter); err != nil {
		return fmt.Errorf("invalid config: sweep.fail_after: %w", err)
	}
	return nil
}

func (r Retry) staleAfter() (time.Duration, error) {
	if r.ReclaimStaleAfter == "" {
		return 0, nil
	}
	return positiveDuration(r.ReclaimStaleAfter)
}

// FailAfterDuration returns the parsed FailAfter. Validate has already
// rejected unparsable values.
func (s Sweep) FailAfterDuration() time.Duration {
	d, _ := positiveDuration(s.FailAfter)
	return d
}

func positiveDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// Policy builds the ledger retry policy. MaxAttempts 1 with no retry flags
// behaves like ledger.NeverRetry.
func (r Retry) Policy() ledger.RetryPolicy {
	staleAfter, _ := r.staleAfter()
	return ledger.AttemptPolicy{
		MaxAttempts:            r.MaxAttempts,
		RetryFailed:            r.RetryFailed,
		ReclaimStaleProcessing: staleAfter > 0,
		StaleAfter:             staleAfter,
	}
}

// TradeTypes returns the configured buy and sell labels.
func (r Reconcile) TradeTypes() (buy, sell model.TradeType) {
	return model.TradeType(r.BuyType), model.TradeType(r.SellType)
}
