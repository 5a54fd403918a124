package config

import (
	"encoding/json"
	"fmt"

	"github.com/csvquerygenie/genie/internal/errhandling"
)

// Convert decodes validated configuration data over Default. Absent
// sections and fields keep their defaults; a retry block starts from
// errhandling.DefaultRetryConfig.
func Convert(data map[string]interface{}) (*Config, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}

	cfg := Default()
	if gen, ok := data["generator"].(map[string]interface{}); ok {
		if _, ok := gen["retry"]; ok {
			retry := errhandling.DefaultRetryConfig()
			cfg.Generator.Retry = &retry
		}
	}

	raw, err := json.Marshal(normalize(data))
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}
