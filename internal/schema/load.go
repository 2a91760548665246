package schema

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrInvalidConfig is returned for documents that parse but do not describe
// a usable configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	requiredRootKeys = []string{"sage_yaml", "catalogs", "packages"}
	requiredMetaKeys = []string{"name", "description", "version", "author"}
)

// Load reads and validates a configuration document from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
// Every structural problem is collected and returned in a single error.
func Parse(data []byte) (*Config, error) {
	var root yaml.MapSlice
	if err := yaml.NewDecoder(bytes.NewReader(data), yaml.UseOrderedMap()).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse config:\n%s", yaml.FormatError(err, false, true))
	}

	if problems := checkRoot(root); len(problems) > 0 {
		return nil, invalid(problems)
	}

	cfg := &Config{}
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Catalogs == nil {
		cfg.Catalogs = map[string]*Catalog{}
	}
	if cfg.Packages == nil {
		cfg.Packages = map[string]*Package{}
	}

	cfg.defaultSeverities()
	cfg.catalogOrder = orderedKeys(root, "catalogs")
	cfg.packageOrder = orderedKeys(root, "packages")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks catalog and package definitions.
// Field type names are not checked here; the processor owns that list.
func (c *Config) Validate() error {
	var problems []string

	for _, key := range c.CatalogKeys() {
		cat := c.Catalogs[key]
		if cat == nil {
			problems = append(problems, fmt.Sprintf("catalog %q is empty", key))
			continue
		}
		ctx := "catalog " + key

		problems = append(problems, missing(ctx, map[string]bool{
			"name":        cat.Name != "",
			"description": cat.Description != "",
			"filename":    cat.Filename != "",
			"file_format": cat.FileFormat.Type != "",
			"fields":      len(cat.Fields) > 0,
		})...)

		switch cat.FileFormat.Type {
		case "":
		case FileCSV:
			if cat.FileFormat.Delimiter == "" {
				problems = append(problems, fmt.Sprintf("%s: CSV files need a delimiter (for example ',' or ';')", ctx))
			}
		case FileExcel:
		default:
			problems = append(problems, fmt.Sprintf("%s: file type %q must be CSV or EXCEL", ctx, cat.FileFormat.Type))
		}

		for i, f := range cat.Fields {
			if f.Name == "" {
				problems = append(problems, fmt.Sprintf("%s: field %d has no name", ctx, i+1))
			}
			if f.Type == "" {
				problems = append(problems, fmt.Sprintf("%s: field %q has no type", ctx, f.Name))
			}
			problems = append(problems, checkRules(fmt.Sprintf("%s field %s", ctx, f.Name), f.ValidationRules)...)
		}
		problems = append(problems, checkRules(ctx+" row_validation", cat.RowValidation)...)
		problems = append(problems, checkRules(ctx+" catalog_validation", cat.CatalogValidation)...)
	}

	for _, key := range c.PackageKeys() {
		pkg := c.Packages[key]
		if pkg == nil {
			problems = append(problems, fmt.Sprintf("package %q is empty", key))
			continue
		}
		ctx := "package " + key

		problems = append(problems, missing(ctx, map[string]bool{
			"name":        pkg.Name != "",
			"description": pkg.Description != "",
			"file_format": pkg.FileFormat.Type != "",
			"catalogs":    len(pkg.Catalogs) > 0,
		})...)

		switch pkg.FileFormat.Type {
		case "", FileZIP:
		case FileCSV, FileExcel:
			if len(pkg.Catalogs) > 1 {
				problems = append(problems, fmt.Sprintf("%s: packages with several catalogs must be ZIP, got %s", ctx, pkg.FileFormat.Type))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: file type %q must be ZIP, CSV or EXCEL", ctx, pkg.FileFormat.Type))
		}

		for _, ref := range pkg.Catalogs {
			if _, ok := c.Catalogs[ref]; !ok {
				problems = append(problems, fmt.Sprintf("%s: references unknown catalog %q", ctx, ref))
			}
		}
		problems = append(problems, checkRules(ctx+" package_validation", pkg.PackageValidation)...)
	}

	if len(problems) > 0 {
		return invalid(problems)
	}
	return nil
}

func (c *Config) defaultSeverities() {
	fill := func(rules []ValidationRule) {
		for i := range rules {
			if rules[i].Severity == "" {
				rules[i].Severity = SeverityError
			}
		}
	}
	for _, cat := range c.Catalogs {
		if cat == nil {
			continue
		}
		for i := range cat.Fields {
			fill(cat.Fields[i].ValidationRules)
		}
		fill(cat.RowValidation)
		fill(cat.CatalogValidation)
	}
	for _, pkg := range c.Packages {
		if pkg != nil {
			fill(pkg.PackageValidation)
		}
	}
}

func checkRoot(root yaml.MapSlice) []string {
	present := map[string]any{}
	for _, item := range root {
		if k, ok := item.Key.(string); ok {
			present[k] = item.Value
		}
	}

	var problems []string
	for _, k := range requiredRootKeys {
		if _, ok := present[k]; !ok {
			problems = append(problems, fmt.Sprintf("missing section %q", k))
		}
	}

	meta, _ := present["sage_yaml"].(yaml.MapSlice)
	if _, ok := present["sage_yaml"]; ok {
		keys := map[string]bool{}
		for _, item := range meta {
			if k, ok := item.Key.(string); ok {
				keys[k] = true
			}
		}
		for _, k := range requiredMetaKeys {
			if !keys[k] {
				problems = append(problems, fmt.Sprintf("sage_yaml: missing %q", k))
			}
		}
	}

	return problems
}

func checkRules(ctx string, rules []ValidationRule) []string {
	var problems []string
	for i, r := range rules {
		if r.Name == "" {
			problems = append(problems, fmt.Sprintf("%s: rule %d has no name", ctx, i+1))
		}
		if strings.TrimSpace(r.Rule) == "" {
			problems = append(problems, fmt.Sprintf("%s: rule %q has no expression", ctx, r.Name))
		}
	}
	return problems
}

func missing(ctx string, present map[string]bool) []string {
	var names []string
	for name, ok := range present {
		if !ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	slices.Sort(names)
	return []string{fmt.Sprintf("%s: missing %s", ctx, strings.Join(names, ", "))}
}

func invalid(problems []string) error {
	return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
}

func orderedKeys(root yaml.MapSlice, section string) []string {
	for _, item := range root {
		if k, _ := item.Key.(string); k != section {
			continue
		}
		entries, _ := item.Value.(yaml.MapSlice)
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			if k, ok := e.Key.(string); ok {
				keys = append(keys, k)
			}
		}
		return keys
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
