// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"os"

	"github.com/mnlk/terrastrokes/internal/config"
)

// loadConfigFile overlays JSON key/value overrides from path onto the
// defaults already in cfg, the same shape as the teacher's
// NewStorageClient reading a JSON credentials file in
// cmd/qrank-builder/main.go.
func loadConfigFile(path string, cfg *config.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}
