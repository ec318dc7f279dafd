package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/avasilenko/rulegen/internal/rules"
)

const maxTransforms = 64

var (
	// ErrInvalidTransforms indicates the provided registry violates validation rules.
	ErrInvalidTransforms = errors.New("transform registry must contain between 1 and 64 valid entries")
)

var defaultTransforms = map[string]rules.Transform{
	"js|jsx":             {Transformer: "babel"},
	"ts|tsx":             {Transformer: "typescript"},
	"css":                {Transformer: "css"},
	"less":               {Transformer: "less"},
	"png|jpg|gif|svg":    {Transformer: "url"},
	"woff|woff2|ttf|eot": {Transformer: "file"},
	"vue":                {Transformer: "vue"},
}

// Storage provides access to the transform registry used by the synthesizer.
type Storage interface {
	GetTransforms() (map[string]rules.Transform, error)
	SetTransforms(transforms map[string]rules.Transform) error
}

// MemoryStorage keeps the registry in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu         sync.RWMutex
	transforms map[string]rules.Transform
}

// NewMemoryStorage initialises storage with a copy of the default registry.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transforms: cloneTransforms(defaultTransforms),
	}
}

// DefaultTransforms returns a copy of the default transform registry.
func DefaultTransforms() map[string]rules.Transform {
	return cloneTransforms(defaultTransforms)
}

// GetTransforms returns a defensive copy of the current registry.
func (s *MemoryStorage) GetTransforms() (map[string]rules.Transform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneTransforms(s.transforms), nil
}

// SetTransforms validates and stores the provided registry.
func (s *MemoryStorage) SetTransforms(transforms map[string]rules.Transform) error {
	normalized, err := normalizeTransforms(transforms)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.transforms = normalized
	s.mu.Unlock()

	return nil
}

func cloneTransforms(src map[string]rules.Transform) map[string]rules.Transform {
	out := make(map[string]rules.Transform, len(src))
	for key, tr := range src {
		options := tr.Options
		if options != nil {
			copied := make(map[string]any, len(options))
			for name, value := range options {
				copied[name] = value
			}
			options = copied
		}
		out[key] = rules.Transform{Transformer: tr.Transformer, Options: options}
	}
	return out
}

func normalizeTransforms(transforms map[string]rules.Transform) (map[string]rules.Transform, error) {
	if len(transforms) == 0 || len(transforms) > maxTransforms {
		return nil, ErrInvalidTransforms
	}

	for key, tr := range transforms {
		if err := rules.ValidateKey(key); err != nil {
			return nil, fmt.Errorf("%w: key %q", ErrInvalidTransforms, key)
		}
		if strings.TrimSpace(tr.Transformer) == "" {
			return nil, fmt.Errorf("%w: key %q has no transformer", ErrInvalidTransforms, key)
		}
	}

	return cloneTransforms(transforms), nil
}
