package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/sage/internal/schema"
)

// ResolveName picks the package or catalog to validate a file with when
// the caller did not name one.
//
// A ZIP file uses the first ZIP package. Other files use the first package
// of the same type, preferring one named after the file. Without such a
// package, a catalog whose filename matches the file is used, then the
// first catalog.
func ResolveName(cfg *schema.Config, path string) (string, error) {
	base := filepath.Base(path)
	ft, _ := DetectFileType(path)

	if ft == schema.FileZIP {
		for _, key := range cfg.PackageKeys() {
			if cfg.Packages[key].FileFormat.Type == schema.FileZIP {
				return key, nil
			}
		}
		return "", fmt.Errorf("%w: %s is a ZIP file but no ZIP package is configured", ErrNoMatch, base)
	}

	if ft != "" {
		var matching []string
		for _, key := range cfg.PackageKeys() {
			if cfg.Packages[key].FileFormat.Type == ft {
				matching = append(matching, key)
			}
		}
		if len(matching) > 0 {
			stem := strings.TrimSuffix(base, filepath.Ext(base))
			for _, key := range matching {
				if strings.EqualFold(key, stem) {
					return key, nil
				}
			}
			return matching[0], nil
		}
	}

	keys := cfg.CatalogKeys()
	for _, key := range keys {
		if strings.EqualFold(cfg.Catalogs[key].Filename, base) {
			return key, nil
		}
	}
	if len(keys) > 0 {
		return keys[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoMatch, base)
}
