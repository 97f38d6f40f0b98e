package main

import (
	"errors"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

type Config struct {
	Addr        string
	CatalogPath string
	SQLitePath  string
	RulesPath   string
	MaxBodySize int64
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.CatalogPath == "" && c.SQLitePath == "" {
		return errors.New("missing -catalog (or -sqlite)")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("max body size must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CatalogPath: fabric.DefaultNormalizedCatalogPath,
		MaxBodySize: 1 << 20,
	}
}
