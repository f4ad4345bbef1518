package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
)

// DefaultManifest is the manifest file read when --manifest is not given.
const DefaultManifest = "linkcheck.yaml"

// Manifest describes a project on disk: the tables, the links between their
// columns and the row rules. Paths are relative to the manifest's directory.
type Manifest struct {
	Encoding   string                  `yaml:"encoding,omitempty"`
	Comma      string                  `yaml:"comma,omitempty"`
	Validation config.ValidationConfig `yaml:"validation,omitempty"`
	Tables     []TableSpec             `yaml:"tables"`
	Links      []LinkSpec              `yaml:"links,omitempty"`
	Rules      []RuleSpec              `yaml:"rules,omitempty"`
}

// TableSpec registers one file.
type TableSpec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path"`
	PrimaryKey  string `yaml:"primary_key,omitempty"`
	ScopeColumn string `yaml:"scope_column,omitempty"`
}

// LinkSpec maps a checked column to its reference column. Columns are written
// as "table.column".
type LinkSpec struct {
	Checked        string `yaml:"checked"`
	Reference      string `yaml:"reference"`
	Key            bool   `yaml:"key,omitempty"`
	ForbiddenTable string `yaml:"forbidden_table,omitempty"`
	CodebookTable  string `yaml:"codebook_table,omitempty"`
}

// RuleSpec is a row rule on one column.
type RuleSpec struct {
	Table       string         `yaml:"table"`
	Column      string         `yaml:"column"`
	Type        string         `yaml:"type"`
	Description string         `yaml:"description,omitempty"`
	Params      map[string]any `yaml:"params,omitempty"`
}

// RawParams returns the rule parameters as JSON, or nil when there are none.
func (r RuleSpec) RawParams() (json.RawMessage, error) {
	if len(r.Params) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(r.Params)
	if err != nil {
		return nil, fmt.Errorf("rule %s.%s: encode params: %w", r.Table, r.Column, err)
	}
	return b, nil
}

// LoadManifest reads and checks a manifest file. Validation settings absent
// from the file keep their defaults.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Validation: config.DefaultValidationConfig()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := m.Validation.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation settings: %w", err)
	}
	storage := config.StorageConfig{Encoding: m.Encoding, Comma: m.Comma}
	if err := storage.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(m.Tables) == 0 {
		return nil, fmt.Errorf("invalid manifest: no tables")
	}
	for i, t := range m.Tables {
		if strings.TrimSpace(t.Path) == "" {
			return nil, fmt.Errorf("invalid manifest: table %d has no path", i+1)
		}
	}
	return m, nil
}

// SetLink adds a link, replacing any link of the same checked column.
func (m *Manifest) SetLink(link LinkSpec) {
	for i := range m.Links {
		if m.Links[i].Checked == link.Checked {
			m.Links[i] = link
			return
		}
	}
	m.Links = append(m.Links, link)
}

// Save writes the manifest back to path.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
