package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSeed reads a YAML catalog seed file.
func LoadSeed(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML catalog seed.
// Unknown keys are rejected so typos in hand-written seeds surface early.
func ParseSeed(data []byte) (Snapshot, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return Snapshot{}, fmt.Errorf("invalid seed: %w", err)
	}
	if err := ValidateSnapshot(snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ValidateSnapshot checks names are present and unique and that operator and
// condition declarations are usable by the builder.
func ValidateSnapshot(snap Snapshot) error {
	seen := make(map[string]bool, len(snap.Operators))
	for i, op := range snap.Operators {
		if !strings.HasPrefix(op.Name, "$") {
			return fmt.Errorf("operators[%d]: name %q must start with $", i, op.Name)
		}
		if len(op.AppliesTo) == 0 {
			return fmt.Errorf("operators[%d]: appliesTo must not be empty", i)
		}
		if seen[op.Name] {
			return fmt.Errorf("operators[%d]: duplicate operator %q", i, op.Name)
		}
		seen[op.Name] = true
	}

	seen = make(map[string]bool, len(snap.Conditions))
	for i, c := range snap.Conditions {
		if c.Name == "" {
			return fmt.Errorf("conditions[%d]: name is required", i)
		}
		if !c.DataType.Valid() {
			return fmt.Errorf("conditions[%d]: unknown dataType %q", i, c.DataType)
		}
		if seen[c.Name] {
			return fmt.Errorf("conditions[%d]: duplicate condition %q", i, c.Name)
		}
		seen[c.Name] = true
	}

	for i, rt := range snap.ResourceTypes {
		if rt.Name == "" {
			return fmt.Errorf("resourceTypes[%d]: name is required", i)
		}
	}
	for i, r := range snap.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
	}
	for i, d := range snap.Departments {
		if d.Name == "" {
			return fmt.Errorf("departments[%d]: name is required", i)
		}
	}
	return nil
}
