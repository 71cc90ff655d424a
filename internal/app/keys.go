package app

import (
	"fmt"

	"flemme/internal/config"
	"flemme/internal/credentials"
)

// SetKey stores the API key of a configured rewrite model.
func SetKey(cfg config.Config, store credentials.Store, modelID, secret string) error {
	if _, ok := cfg.LLMModelByID(modelID); !ok {
		return fmt.Errorf("unknown LLM model %q", modelID)
	}
	if secret == "" {
		return fmt.Errorf("empty API key for %q", modelID)
	}
	return store.Set(modelID, secret)
}

// DeleteKey removes the API key of a rewrite model. Unknown ids are
// accepted so keys of removed models can be cleaned up.
func DeleteKey(store credentials.Store, modelID string) error {
	return store.Delete(modelID)
}
