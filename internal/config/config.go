// Package config defines the pipeline configuration and its validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the top-level configuration for one ETL run.
type Pipeline struct {
	// Job names the run for metrics tagging. Optional.
	Job string `json:"job"`

	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
}

// Source locates the two input families. Both roots are walked recursively;
// files match by extension only.
type Source struct {
	SongData string `json:"song_data"`
	LogData  string `json:"log_data"`

	// Extension filters files in both roots. Defaults to ".json".
	Extension string `json:"extension"`
}

// Storage selects the backend and its DSN. ${VAR} references in the DSN are
// expanded from the environment at load time, so credentials can stay out of
// the config file.
type Storage struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Load reads and decodes a pipeline config file and applies defaults.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var p Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}

	if p.Source.Extension == "" {
		p.Source.Extension = ".json"
	}
	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)

	return p, nil
}
