// Package scenario loads the initial fighter line-up from YAML.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-dogfight/pkg/engine"
)

// FighterSpec describes one fighter to spawn. DesiredHeading defaults to
// Heading when omitted.
type FighterSpec struct {
	ID             string `yaml:"id"`
	Heading        int    `yaml:"heading"`
	DesiredHeading *int   `yaml:"desired_heading,omitempty"`
	Speed          int    `yaml:"speed"`
	X              int    `yaml:"x"`
	Y              int    `yaml:"y"`
}

// Scenario is a named set of fighters.
type Scenario struct {
	Name     string        `yaml:"name"`
	Fighters []FighterSpec `yaml:"fighters"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a scenario document.
func Parse(raw []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// Apply spawns every fighter into e. Entries that fail validation or reuse
// an ID are skipped; all such failures are returned joined together.
// It returns the number of fighters spawned.
func (s *Scenario) Apply(e *engine.Engine) (int, error) {
	var errs []error
	spawned := 0

	for i, fs := range s.Fighters {
		if fs.ID == "" {
			errs = append(errs, fmt.Errorf("fighter %d: missing id", i))
			continue
		}
		if fs.DesiredHeading != nil && !e.Gate().ValidHeading(*fs.DesiredHeading) {
			errs = append(errs, fmt.Errorf("fighter %q: desired heading %d out of range", fs.ID, *fs.DesiredHeading))
			continue
		}
		if !e.Spawn(fs.ID, fs.Heading, fs.Speed, fs.X, fs.Y) {
			errs = append(errs, fmt.Errorf("fighter %q: rejected (duplicate id or inertial data out of range)", fs.ID))
			continue
		}
		if fs.DesiredHeading != nil {
			e.SetNewHeading(fs.ID, *fs.DesiredHeading)
		}
		spawned++
	}

	return spawned, errors.Join(errs...)
}
