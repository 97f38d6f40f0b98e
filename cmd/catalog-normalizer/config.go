package main

import (
	"errors"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

type Config struct {
	InputPath  string
	OutputPath string
	RulesPath  string
	XLSXPath   string
	SQLitePath string
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.InputPath == c.OutputPath {
		return errors.New("-in and -out must differ; the raw catalog is append-only")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  fabric.DefaultCatalogPath,
		OutputPath: fabric.DefaultNormalizedCatalogPath,
	}
}
