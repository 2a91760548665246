// Package schema defines the catalog and package model a validation run is
// configured with, and loads it from a YAML document.
package schema

import (
	"fmt"
	"strings"
)

// FileType is the declared format of a catalog or package file.
type FileType string

const (
	FileCSV   FileType = "CSV"
	FileExcel FileType = "EXCEL"
	FileZIP   FileType = "ZIP"
)

// Field types understood by the core. Anything else is a configuration error.
const (
	TypeText    = "texto"
	TypeDecimal = "decimal"
	TypeInteger = "entero"
	TypeDate    = "fecha"
	TypeBool    = "booleano"
)

// Severity classifies a failing rule.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	// SeverityMessage rules are informational: failing rows are reported but
	// never counted.
	SeverityMessage Severity = "MESSAGE"
)

// ParseSeverity parses a severity name case-insensitively. An empty string
// is ERROR.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ERROR":
		return SeverityError, nil
	case "WARNING":
		return SeverityWarning, nil
	case "MESSAGE":
		return SeverityMessage, nil
	default:
		return "", fmt.Errorf("%q is not a valid severity, must be error, warning or message", s)
	}
}

// UnmarshalYAML accepts any capitalization of the severity name.
func (s *Severity) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FileFormat describes how a file is laid out.
type FileFormat struct {
	Type      FileType `yaml:"type"`
	Delimiter string   `yaml:"delimiter"`
	Header    bool     `yaml:"header"`
}

// Comma returns the CSV delimiter as a rune, defaulting to ','.
func (f FileFormat) Comma() rune {
	for _, r := range f.Delimiter {
		return r
	}
	return ','
}

// ValidationRule is a named boolean expression. Rows for which the
// expression is false fail the rule.
type ValidationRule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Rule        string   `yaml:"rule"`
	Severity    Severity `yaml:"severity"`
}

// Field is one expected column of a catalog.
type Field struct {
	Name            string           `yaml:"name"`
	Type            string           `yaml:"type"`
	Required        bool             `yaml:"required"`
	Unique          bool             `yaml:"unique"`
	ValidationRules []ValidationRule `yaml:"validation_rules"`
}

// Catalog is the schema of one file.
type Catalog struct {
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description"`
	Filename          string           `yaml:"filename"`
	FileFormat        FileFormat       `yaml:"file_format"`
	Fields            []Field          `yaml:"fields"`
	RowValidation     []ValidationRule `yaml:"row_validation"`
	CatalogValidation []ValidationRule `yaml:"catalog_validation"`
}

// FieldNames returns the declared field names in order.
func (c *Catalog) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Package groups catalogs that are delivered together. Catalogs holds
// catalog keys of the owning Config.
type Package struct {
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description"`
	FileFormat        FileFormat       `yaml:"file_format"`
	Catalogs          []string         `yaml:"catalogs"`
	PackageValidation []ValidationRule `yaml:"package_validation"`
}

// Meta is the descriptive header of a configuration document.
type Meta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	Comments    string `yaml:"comments"`
}

// Config is a loaded configuration document.
type Config struct {
	Meta     Meta                `yaml:"sage_yaml"`
	Catalogs map[string]*Catalog `yaml:"catalogs"`
	Packages map[string]*Package `yaml:"packages"`

	catalogOrder []string
	packageOrder []string
}

// Catalog returns the catalog with the given key.
func (c *Config) Catalog(key string) (*Catalog, bool) {
	cat, ok := c.Catalogs[key]
	return cat, ok
}

// Package returns the package with the given key.
func (c *Config) Package(key string) (*Package, bool) {
	pkg, ok := c.Packages[key]
	return pkg, ok
}

// CatalogKeys returns catalog keys in document order.
func (c *Config) CatalogKeys() []string {
	if len(c.catalogOrder) == len(c.Catalogs) {
		return append([]string(nil), c.catalogOrder...)
	}
	return sortedKeys(c.Catalogs)
}

// PackageKeys returns package keys in document order.
func (c *Config) PackageKeys() []string {
	if len(c.packageOrder) == len(c.Packages) {
		return append([]string(nil), c.packageOrder...)
	}
	return sortedKeys(c.Packages)
}
