package main

import (
	"errors"
	"fmt"
	"strings"
)

var allStages = []string{"ingest", "normalize", "suggest", "render"}

type Config struct {
	BaseDir string

	Model       string
	Concurrency int

	Group       string
	Suggestions int

	SkipDegraded bool
	XLSX         bool
	SQLite       bool
	RulesPath    string

	FromStage string
	OnlyStage string

	Overwrite bool
}

func (c Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("missing -base-dir")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.Suggestions <= 0 {
		return errors.New("n must be > 0")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !isStage(s) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(allStages, "|"))
		}
	}
	return nil
}

func isStage(s string) bool {
	for _, st := range allStages {
		if st == s {
			return true
		}
	}
	return false
}

func defaultConfig() Config {
	return Config{
		BaseDir:     ".",
		Model:       "gpt-4o",
		Concurrency: 2,
		Suggestions: 3,
	}
}
