package classifier

import (
	"fmt"
	"strings"
)

// Config selects and configures the classifier backend.
type Config struct {
	Kind      Kind
	ModelPath string
	Remote    RemoteConfig
}

// ParseKind converts a configuration value into a Kind. Empty selects KindLocal.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindLocal:
		return KindLocal, nil
	case KindRemote:
		return KindRemote, nil
	default:
		return "", fmt.Errorf("unknown classifier kind %q", value)
	}
}

// Load builds the configured classifier. A local classifier is read from ModelPath once
// and held for the process lifetime.
func Load(cfg Config) (Classifier, error) {
	switch cfg.Kind {
	case KindLocal, "":
		model, err := LoadDense(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load local model: %w", err)
		}
		return model, nil
	case KindRemote:
		remote, err := NewRemote(cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("remote classifier: %w", err)
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Kind)
	}
}
