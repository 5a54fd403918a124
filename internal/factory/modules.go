// Package factory builds the runtime components from a loaded configuration.
// Generators are looked up by type in the registry; unknown types are an
// error.
package factory

import (
	"fmt"
	"strings"

	"github.com/csvquerygenie/genie/internal/config"
	"github.com/csvquerygenie/genie/internal/generator"
	"github.com/csvquerygenie/genie/internal/modules/output"
	"github.com/csvquerygenie/genie/internal/registry"
	"github.com/csvquerygenie/genie/internal/runtime"
	"github.com/csvquerygenie/genie/internal/server"
	"github.com/csvquerygenie/genie/internal/store"
)

// CreateGenerator builds the generator named by cfg.Type. An empty type
// selects the chat generator.
func CreateGenerator(cfg config.GeneratorConfig) (generator.Generator, error) {
	genType := strings.TrimSpace(cfg.Type)
	if genType == "" {
		genType = config.GeneratorChat
	}
	constructor := registry.GetGeneratorConstructor(genType)
	if constructor == nil {
		return nil, fmt.Errorf("%w %q (available: %s)", generator.ErrUnknownType, genType,
			strings.Join(registry.ListGeneratorTypes(), ", "))
	}
	gen, err := constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s generator: %w", genType, err)
	}
	return gen, nil
}

// CreateExecutor builds an executor from cfg. gen may be nil.
func CreateExecutor(cfg *config.Config, gen generator.Generator, source string, outputs ...output.Module) (*runtime.Executor, error) {
	genName := ""
	if gen != nil {
		genName = cfg.Generator.Type
	}
	return runtime.NewExecutor(gen, runtime.Options{
		HeaderRow:         cfg.Parser.HeaderRow,
		Expression:        cfg.Filter.Expression,
		ExpressionOnError: cfg.Filter.OnError,
		Outputs:           outputs,
		Source:            source,
		GeneratorName:     genName,
	})
}

// CreateStore builds the dataset store.
func CreateStore(cfg config.StoreConfig) *store.MemoryStore {
	return store.NewMemoryStore(cfg.MaxEntries, cfg.TTL())
}

// CreateServer builds the HTTP server around exec and st.
func CreateServer(cfg *config.Config, exec *runtime.Executor, st *store.MemoryStore) (*server.Server, error) {
	return server.New(ServerConfig(cfg), exec, st)
}

// ServerConfig maps the file configuration to server settings.
func ServerConfig(cfg *config.Config) server.Config {
	return server.Config{
		ListenAddress: cfg.Server.ListenAddress,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		ReadTimeout:   cfg.Server.ReadTimeout(),
		WriteTimeout:  cfg.Server.WriteTimeout(),
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		HeaderRow: cfg.Parser.HeaderRow,
	}
}
