package main

import (
	"errors"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

type Config struct {
	CatalogPath    string
	InspirationDir string
	ImagesDir      string
	Group          string
	List           bool
	Suggestions    int
	OutputPath     string
	Model          string
	RulesPath      string
	APIKey         string
}

func (c Config) Validate() error {
	if c.CatalogPath == "" {
		return errors.New("missing -catalog")
	}
	if c.List {
		return nil
	}
	if c.Group == "" {
		return errors.New("missing -group (use -list to see the available groups)")
	}
	if c.ImagesDir == "" {
		return errors.New("missing -images")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Suggestions <= 0 {
		return errors.New("n must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		CatalogPath:    fabric.DefaultNormalizedCatalogPath,
		InspirationDir: "inspiration",
		ImagesDir:      "processed_images",
		Suggestions:    3,
		OutputPath:     "last_suggestions.txt",
		Model:          "gpt-4o",
	}
}
