// Package registry maps generator type names to their constructors.
//
// # Adding a New Generator
//
// Implement generator.Generator, then register a constructor from an init()
// function:
//
//	func init() {
//	    registry.RegisterGenerator("rules", func(cfg config.GeneratorConfig) (generator.Generator, error) {
//	        return NewRulesGenerator(cfg.ScriptFile)
//	    })
//	}
//
// The built-in chat, script and static types are registered at startup.
package registry

import (
	"sort"
	"sync"

	"github.com/csvquerygenie/genie/internal/config"
	"github.com/csvquerygenie/genie/internal/generator"
)

// GeneratorConstructor builds a generator from its configuration.
type GeneratorConstructor func(cfg config.GeneratorConfig) (generator.Generator, error)

var (
	generatorMu       sync.RWMutex
	generatorRegistry = make(map[string]GeneratorConstructor)
)

// RegisterGenerator registers a constructor by type name, replacing any
// previous registration. Safe for concurrent use.
func RegisterGenerator(generatorType string, constructor GeneratorConstructor) {
	generatorMu.Lock()
	defer generatorMu.Unlock()
	generatorRegistry[generatorType] = constructor
}

// GetGeneratorConstructor returns the constructor for generatorType, or nil.
func GetGeneratorConstructor(generatorType string) GeneratorConstructor {
	generatorMu.RLock()
	defer generatorMu.RUnlock()
	return generatorRegistry[generatorType]
}

// ListGeneratorTypes returns the registered type names, sorted.
func ListGeneratorTypes() []string {
	generatorMu.RLock()
	defer generatorMu.RUnlock()
	types := make([]string, 0, len(generatorRegistry))
	for t := range generatorRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ClearRegistries removes all registered constructors.
// This is intended for testing purposes only.
func ClearRegistries() {
	generatorMu.Lock()
	generatorRegistry = make(map[string]GeneratorConstructor)
	generatorMu.Unlock()
}

// RegisterBuiltins (re)registers the built-in generator types.
func RegisterBuiltins() {
	registerBuiltinGenerators()
}
