package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hjagadishkumar/alfalfa-yield/models"
)

// uploadManifest lists the files of one submission, e.g.
//
//	slots:
//	  target_file: data/target.csv
//	  boost_file: data/boost.csv
//
// Relative paths are resolved against the manifest's directory.
type uploadManifest struct {
	Gateway string            `yaml:"gateway"`
	File    string            `yaml:"file"`
	Slots   map[string]string `yaml:"slots"`
}

func loadManifest(path string) (*uploadManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return parseManifest(f, filepath.Dir(path))
}

func parseManifest(reader io.Reader, baseDir string) (*uploadManifest, error) {
	var m uploadManifest
	if err := yaml.NewDecoder(reader).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
	}

	if m.File != "" {
		m.File = resolve(baseDir, m.File)
	}
	for name, p := range m.Slots {
		if _, err := models.ParseSlotName(name); err != nil {
			return nil, err
		}
		m.Slots[name] = resolve(baseDir, p)
	}
	return &m, nil
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
