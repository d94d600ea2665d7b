package memory

import (
	"fmt"

	"github.com/dusk-indust/formcrew/internal/config"
)

// Open returns the backend selected by cfg.
func Open(cfg config.MemoryConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemStore(), nil
	case "kuzu":
		s, err := NewKuzuStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("memory: unknown backend %q", cfg.Backend)
	}
}
