package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/quickvest/vesting-adapter/pkg/secrets"
)

// SigningKey is the custodian key material resolved from the secrets backend.
type SigningKey struct {
	Account string `json:"account"`
	Secret  string `json:"signing_secret"`
}

// Resolver fetches the custodian signing secret from AWS Secrets Manager,
// caching it in-memory so rotation only costs one fetch per TTL.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[SigningKey]
}

// NewResolver constructs a signing-key resolver.
func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[SigningKey]) *Resolver {
	return &Resolver{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve returns the signing key stored under secretName.
// The secret must be a JSON map with "account" and "signing_secret" keys.
func (r *Resolver) Resolve(ctx context.Context, secretName string) (SigningKey, error) {
	if key, ok := r.cache.Get(secretName); ok {
		return key, nil
	}

	raw, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		return SigningKey{}, fmt.Errorf("resolve signing key [%s]: %w", secretName, err)
	}

	key := SigningKey{
		Account: raw["account"],
		Secret:  raw["signing_secret"],
	}
	if key.Secret == "" {
		return SigningKey{}, fmt.Errorf("secret [%s] is missing signing_secret", secretName)
	}

	r.cache.Put(secretName, key)
	r.logger.Info("secrets.signing_key_resolved", zap.String("secret", secretName))
	return key, nil
}

// Bust drops the cached key, forcing a re-fetch on next Resolve (rotation).
func (r *Resolver) Bust(secretName string) {
	r.cache.Bust(secretName)
}
