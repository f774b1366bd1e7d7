// Package config defines the JSON-serializable run configuration for the
// filter and a static validator over it. It is intentionally small and
// dependency-free: runs can be described fully on the command line, or
// loaded from a JSON file and passed through the program without glue code.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Run describes one filtering run. Field names in Go mirror the JSON
// structure; zero values mean "use the default".
type Run struct {
	// Job names the run for logging, metrics labeling, and run history.
	Job string `json:"job"`

	// Input is the path to the VCF to filter (.vcf or .vcf.gz; compression
	// is detected from content, not the name).
	Input string `json:"input"`

	// Output is the destination path.
	Output string `json:"output"`

	// Samples is the path to the sample-name list, one name per line.
	Samples string `json:"samples"`

	// Compress gzip-compresses the output stream.
	Compress bool `json:"compress"`

	// History optionally names a SQLite file recording completed runs.
	History string `json:"history,omitempty"`

	Runtime RuntimeConfig `json:"runtime"`
}

// RuntimeConfig controls concurrency and queue sizing.
type RuntimeConfig struct {
	// Workers is the projection worker-pool size. Zero means the default.
	Workers int `json:"workers"`

	// QueueCapacity bounds each inter-stage queue. Zero means the default.
	QueueCapacity int `json:"queue_capacity"`
}

// Load decodes a Run from a JSON file.
func Load(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return Run{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var r Run
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return Run{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return r, nil
}
