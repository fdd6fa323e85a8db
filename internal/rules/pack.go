package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/fiscal_rules.yaml
var defaultPackYAML []byte

// Pack is the serialized form of the reference tables. Monetary rates are
// kept as strings and parsed when a Snapshot is built.
type Pack struct {
	Version          string            `yaml:"version"`
	Ncm              []NcmEntry        `yaml:"ncm"`
	PisCofins        []CstEntry        `yaml:"pis_cofins"`
	ConsistencyRules []ConsistencyRule `yaml:"consistency_rules"`
	Cfop             []CfopEntry       `yaml:"cfop"`
	States           []StateEntry      `yaml:"states"`
	LegalReferences  []LegalEntry      `yaml:"legal_references"`
}

// NcmEntry is one row of the NCM table
type NcmEntry struct {
	Code        string   `yaml:"code"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Sugar       bool     `yaml:"sugar"`
	Keywords    []string `yaml:"keywords"`
}

// CstEntry is one row of the PIS/COFINS CST table
type CstEntry struct {
	CST         string               `yaml:"cst"`
	Description string               `yaml:"description"`
	Situation   string               `yaml:"situation"`
	Rates       map[string]RateEntry `yaml:"rates"`
}

// RateEntry holds PIS/COFINS percentages as decimal strings
type RateEntry struct {
	Pis    string `yaml:"pis"`
	Cofins string `yaml:"cofins"`
}

// ConsistencyRule is a JsonLogic expression over a CST pair
type ConsistencyRule struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description"`
	Logic       map[string]any `yaml:"logic"`
}

// CfopEntry is one row of the CFOP table
type CfopEntry struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Scope       string `yaml:"scope"`
	Direction   string `yaml:"direction"`
	Sugar       bool   `yaml:"sugar"`
}

// StateEntry holds state ICMS rates as decimal strings
type StateEntry struct {
	UF           string            `yaml:"uf"`
	Name         string            `yaml:"name"`
	IcmsRate     string            `yaml:"icms_rate"`
	LegalRef     string            `yaml:"legal_ref"`
	NcmOverrides map[string]string `yaml:"ncm_overrides"`
}

// LegalEntry is one row of the legal reference table
type LegalEntry struct {
	Code     string   `yaml:"code"`
	Title    string   `yaml:"title"`
	Citation string   `yaml:"citation"`
	Article  string   `yaml:"article"`
	Scope    string   `yaml:"scope"`
	Taxes    []string `yaml:"taxes"`
	Summary  string   `yaml:"summary"`
	URL      string   `yaml:"url"`
}

// ParsePack decodes a YAML rule pack
func ParsePack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	if p.Version == "" {
		return nil, invalidPack("missing version")
	}
	return &p, nil
}

// DefaultPack returns the embedded rule pack
func DefaultPack() (*Pack, error) {
	return ParsePack(defaultPackYAML)
}

// LoadPackFile reads a YAML rule pack from disk
func LoadPackFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}
	return ParsePack(data)
}

// LoadDefault builds a Snapshot from the embedded rule pack
func LoadDefault() (*Snapshot, error) {
	p, err := DefaultPack()
	if err != nil {
		return nil, err
	}
	return NewSnapshot(p)
}

// MustLoadDefault is LoadDefault for the embedded pack, which is known good
func MustLoadDefault() *Snapshot {
	s, err := LoadDefault()
	if err != nil {
		panic(err)
	}
	return s
}

// LoadFile builds a Snapshot from a YAML rule pack on disk
func LoadFile(path string) (*Snapshot, error) {
	p, err := LoadPackFile(path)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(p)
}
