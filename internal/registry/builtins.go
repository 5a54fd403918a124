package registry

import (
	"github.com/csvquerygenie/genie/internal/config"
	"github.com/csvquerygenie/genie/internal/generator"
)

func init() {
	registerBuiltinGenerators()
}

func registerBuiltinGenerators() {
	// chat - OpenAI-compatible chat completions
	RegisterGenerator(config.GeneratorChat, func(cfg config.GeneratorConfig) (generator.Generator, error) {
		return generator.NewChatGenerator(generator.ChatConfig{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			APIKeyEnv:   cfg.APIKeyEnv,
			Timeout:     cfg.Timeout(),
			MaxAttempts: cfg.MaxAttempts,
			Retry:       cfg.Retry,
		})
	})

	// script - JavaScript generate(query, headers) via goja
	RegisterGenerator(config.GeneratorScript, func(cfg config.GeneratorConfig) (generator.Generator, error) {
		return generator.NewScriptGenerator(generator.ScriptConfig{
			Script:     cfg.Script,
			ScriptFile: cfg.ScriptFile,
		})
	})

	// static - the same configured conditions for every question
	RegisterGenerator(config.GeneratorStatic, func(cfg config.GeneratorConfig) (generator.Generator, error) {
		return generator.NewStaticGenerator(cfg.Conditions), nil
	})
}
