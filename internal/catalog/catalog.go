// Package catalog defines the model catalog entry type and the seed file
// loader for built-in models.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendKind selects which adapter serves a model. It is resolved once when
// the catalog entry is created, not re-matched by label on every request.
type BackendKind string

const (
	// KindRemote routes to the streaming HTTP adapter.
	KindRemote BackendKind = "remote"
	// KindLocalProcess routes to the subprocess adapter.
	KindLocalProcess BackendKind = "local_process"
	// KindLoopback routes to the deterministic echo adapter used for testing
	// the pipeline without a real backend.
	KindLoopback BackendKind = "loopback"
)

// ParseKind validates a backend kind string from config or API input.
func ParseKind(s string) (BackendKind, error) {
	switch BackendKind(s) {
	case KindRemote, KindLocalProcess, KindLoopback:
		return BackendKind(s), nil
	}
	return "", fmt.Errorf("catalog: unknown backend kind %q", s)
}

// ModelRef is one model catalog entry. Built-in entries are seeded by the
// system, immutable, and protected from deletion for the lifetime of the
// catalog.
type ModelRef struct {
	ID      string      `json:"id"`
	Label   string      `json:"label"`
	Kind    BackendKind `json:"kind"`
	BuiltIn bool        `json:"built_in"`
}

// SeedModel is one entry of the built-in model seed file.
type SeedModel struct {
	Label string `yaml:"label"`
	Kind  string `yaml:"kind"`
}

type seedFile struct {
	Models []SeedModel `yaml:"models"`
}

// LoadSeed reads the built-in model definitions from a YAML file. Every entry
// loaded this way carries the built-in flag.
func LoadSeed(path string) ([]ModelRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed file %s: %w", path, err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("catalog: parse seed file %s: %w", path, err)
	}
	refs := make([]ModelRef, 0, len(sf.Models))
	for _, m := range sf.Models {
		kind, err := ParseKind(m.Kind)
		if err != nil {
			return nil, fmt.Errorf("catalog: seed entry %q: %w", m.Label, err)
		}
		if m.Label == "" {
			return nil, fmt.Errorf("catalog: seed entry with empty label")
		}
		refs = append(refs, ModelRef{Label: m.Label, Kind: kind, BuiltIn: true})
	}
	return refs, nil
}

// DefaultSeed is the catalog used when no seed file is configured: one entry
// per backend kind so a fresh install can stream immediately.
func DefaultSeed() []ModelRef {
	return []ModelRef{
		{Label: "remote-default", Kind: KindRemote, BuiltIn: true},
		{Label: "local-default", Kind: KindLocalProcess, BuiltIn: true},
		{Label: "echo", Kind: KindLoopback, BuiltIn: true},
	}
}
