// Package credentials keeps provider API keys in the database so they can be
// rotated without redeploying. Environment variables still take precedence.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"draw2story/internal/infra"
	"draw2story/internal/sqlinline"
)

const (
	ProviderCohere    = "cohere"
	ProviderGemini    = "gemini"
	ProviderStability = "stability"
)

// ErrUnknownProvider is returned for providers without a credentials slot.
var ErrUnknownProvider = errors.New("credentials: unknown provider")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// ParseProvider normalizes a provider name.
func ParseProvider(raw string) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(raw))
	switch provider {
	case ProviderCohere, ProviderGemini, ProviderStability:
		return provider, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the key from the environment and falls back to the store.
func (s *Store) Resolve(ctx context.Context, provider, fromEnv string) (string, error) {
	if key := strings.TrimSpace(fromEnv); key != "" {
		return key, nil
	}
	return s.Token(ctx, provider)
}

// Set stores or replaces the key for provider.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	provider, err := ParseProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, key); err != nil {
		return fmt.Errorf("credentials: store %s: %w", provider, err)
	}
	return nil
}
