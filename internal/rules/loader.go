package rules

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader loads and holds the current rule configuration. It is an explicit
// service object: construct once at session start, hand the reference to the
// evaluator and the facade, reload through Reload.
type Loader struct {
	mu       sync.RWMutex
	path     string
	config   *Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewLoader creates a loader for the given rule document path. An empty path
// yields the built-in default configuration and makes Reload a no-op.
func NewLoader(path string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		path:     path,
		config:   DefaultConfig(),
		validate: validator.New(),
		logger:   logger,
	}
	if path != "" {
		if err := l.Reload(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Config returns the current configuration. The returned pointer is replaced
// wholesale on reload, never mutated in place, so holding it across a reload
// is safe.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Path returns the rule document path, empty for the built-in defaults.
func (l *Loader) Path() string {
	return l.path
}

// Reload re-reads and validates the rule document, swapping the held
// configuration on success. On failure the previous configuration stays in
// effect.
func (l *Loader) Reload() error {
	if l.path == "" {
		return nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read rule config %s: %w", l.path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse rule config %s: %w", l.path, err)
	}
	if err := l.validate.Struct(cfg); err != nil {
		return fmt.Errorf("rule config %s failed validation: %w", l.path, err)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	l.logger.Info("rule configuration loaded",
		zap.String("path", l.path),
		zap.Int("integrity_rules", len(cfg.IntegrityRules)),
		zap.Int("validation_rules", len(cfg.ValidationRules)),
	)
	return nil
}
