package main

import (
	"errors"
	"time"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

type Config struct {
	WatchDir     string
	ProcessedDir string
	CatalogPath  string
	Interval     time.Duration
	Once         bool
	Concurrency  int
	SkipDegraded bool
	Model        string
	StrictSchema bool
	APIKey       string
}

func (c Config) Validate() error {
	if c.WatchDir == "" {
		return errors.New("missing -watch")
	}
	if c.ProcessedDir == "" {
		return errors.New("missing -processed")
	}
	if c.CatalogPath == "" {
		return errors.New("missing -catalog")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if !c.Once && c.Interval <= 0 {
		return errors.New("interval must be > 0 (or pass -once)")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		WatchDir:     "images",
		ProcessedDir: "processed_images",
		CatalogPath:  fabric.DefaultCatalogPath,
		Interval:     5 * time.Second,
		Concurrency:  2,
		Model:        "gpt-4o",
	}
}
