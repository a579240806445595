package config

import "github.com/benroywillis/Cyclebite-sub001/internal/basepointer"

// Model is the unified, format-agnostic representation of the analysis
// configuration.
type Model struct {
	Analysis Analysis
	Output   Output
	// Publish is nil when no socket.io sink is configured.
	Publish *Publish
}

// Analysis tunes the recognition engine.
type Analysis struct {
	// MinBasePointerSize is the smallest allocation, in bytes, that can own
	// a collection.
	MinBasePointerSize int64
	Allocators         []string
	MaxCallDepth       int
	// Workers bounds the tasks analysed at once; zero means one per CPU.
	Workers int
}

// Output names the files a run writes. Empty paths are skipped, except
// Statistics, which then goes to the run's output stream.
type Output struct {
	Statistics  string
	Expressions string
	Report      string
	Pragmas     string
}

// Publish configures the socket.io result stream.
type Publish struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
}

// Default returns the model used when no configuration file is given.
func Default() *Model {
	bp := basepointer.DefaultConfig()
	return &Model{
		Analysis: Analysis{
			MinBasePointerSize: bp.MinSize,
			Allocators:         bp.Allocators,
			MaxCallDepth:       bp.MaxCallDepth,
		},
	}
}

// BasePointer returns the base pointer finder settings of the model.
func (m *Model) BasePointer() basepointer.Config {
	return basepointer.Config{
		MinSize:      m.Analysis.MinBasePointerSize,
		Allocators:   m.Analysis.Allocators,
		MaxCallDepth: m.Analysis.MaxCallDepth,
	}
}
