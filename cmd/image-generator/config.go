package main

import (
	"errors"
)

type Config struct {
	InputPath string
	OutputDir string
	Model     string
	Size      string
	Quality   string
	Overwrite bool
	APIKey    string
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Size == "" {
		return errors.New("missing -size")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath: "last_suggestions.txt",
		OutputDir: "dalle_outputs",
		Model:     "dall-e-3",
		Size:      "1024x1024",
		Quality:   "standard",
	}
}
