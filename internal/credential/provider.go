package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yegors/co-translate/pkg/logger"
)

// Key is the settings key the bearer token is stored under
const Key = "groq_api_key"

// ErrNoCredential is returned when neither the store nor the configuration holds a token
var ErrNoCredential = errors.New("no API credential configured")

// Store persists settings across runs
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Provider hands out the bearer token for the hosted APIs. The value is resolved on
// first use and memoised for the lifetime of the process.
type Provider struct {
	store        Store
	defaultValue string
	logger       *logger.Logger

	mu    sync.Mutex
	value string
}

// NewProvider creates a provider backed by store; defaultValue seeds an empty store
func NewProvider(store Store, defaultValue string, log *logger.Logger) *Provider {
	return &Provider{
		store:        store,
		defaultValue: strings.TrimSpace(defaultValue),
		logger:       log.Named("credential"),
	}
}

// Credential returns the token, initialising the store on first access
func (p *Provider) Credential(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.value != "" {
		return p.value, nil
	}

	stored, ok, err := p.store.GetSetting(ctx, Key)
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	if ok && stored != "" {
		p.value = stored
		p.logger.Debug("Loaded credential from settings store")
		return p.value, nil
	}

	if p.defaultValue == "" {
		return "", ErrNoCredential
	}

	if err := p.store.PutSetting(ctx, Key, p.defaultValue); err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}
	p.value = p.defaultValue
	p.logger.Info("Stored configured credential in settings store")
	return p.value, nil
}
