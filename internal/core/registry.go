package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/JonMunkholm/sage/internal/schema"
)

// CoerceFunc converts one non-null cell to its typed value.
// It returns false when the cell does not belong to the type.
type CoerceFunc func(v any) (any, bool)

// TypeDefinition describes one declared field type.
type TypeDefinition struct {
	Name string
	// Coerce is nil for types whose values cannot be checked; such fields
	// get a single warning instead of per-row detail.
	Coerce CoerceFunc
}

var (
	typeRegistry   = make(map[string]TypeDefinition)
	typeRegistryMu sync.RWMutex
)

func init() {
	RegisterType(TypeDefinition{Name: schema.TypeText, Coerce: coerceText})
	RegisterType(TypeDefinition{Name: schema.TypeDecimal, Coerce: coerceDecimal})
	RegisterType(TypeDefinition{Name: schema.TypeInteger, Coerce: coerceInteger})
	RegisterType(TypeDefinition{Name: schema.TypeDate, Coerce: coerceDate})
	RegisterType(TypeDefinition{Name: schema.TypeBool, Coerce: coerceBool})
}

// RegisterType adds a field type.
// Panics if a type with the same name is already registered.
func RegisterType(def TypeDefinition) {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()

	if _, exists := typeRegistry[def.Name]; exists {
		panic(fmt.Sprintf("field type already registered: %s", def.Name))
	}
	typeRegistry[def.Name] = def
}

// LookupType returns a field type by name.
func LookupType(name string) (TypeDefinition, bool) {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()

	def, ok := typeRegistry[name]
	return def, ok
}

// TypeNames returns the registered type names, sorted.
func TypeNames() []string {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()

	names := make([]string, 0, len(typeRegistry))
	for name := range typeRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// unregisterType removes a type. Used by tests.
func unregisterType(name string) {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()
	delete(typeRegistry, name)
}
