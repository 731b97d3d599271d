package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"gopkg.in/yaml.v3"
)

// SeedEntry is one contact in a YAML seed file.
type SeedEntry struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
}

type seedFile struct {
	Contacts []SeedEntry `yaml:"contacts"`
}

// Skipped is a seed entry that was not imported.
type Skipped struct {
	SeedEntry
	Reason string
}

// ImportResult reports what ImportContacts did.
type ImportResult struct {
	Added   []domain.Contact
	Skipped []Skipped
}

// ParseSeed accepts either a top-level "contacts:" list or a bare list.
func ParseSeed(r io.Reader) ([]SeedEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var wrapped seedFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Contacts != nil {
		return wrapped.Contacts, nil
	}
	var bare []SeedEntry
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parse contact seed: %w", err)
	}
	return bare, nil
}

// ImportContacts adds every seed entry. Entries rejected by validation
// (bad phone, duplicate, missing name) are skipped, so re-importing the same
// file is harmless.
func ImportContacts(ctx context.Context, eng *parley.Engine, r io.Reader) (ImportResult, error) {
	entries, err := ParseSeed(r)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for _, e := range entries {
		c, err := eng.AddContact(ctx, e.Name, e.Phone)
		if err != nil {
			if domain.IsValidation(err) {
				res.Skipped = append(res.Skipped, Skipped{SeedEntry: e, Reason: err.Error()})
				continue
			}
			return res, fmt.Errorf("import %q: %w", e.Name, err)
		}
		res.Added = append(res.Added, c)
	}
	return res, nil
}
