// Package entitlements answers whether creative QC is licensed and toggled
// on for an organization. The config-backed resolver stands in for the
// billing/subscription service, which is outside this system's boundary.
package entitlements

import (
	"context"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
)

// Resolver reports creative-QC entitlement for organizations.
type Resolver interface {
	CreativeQCEnabled(ctx context.Context, orgID string) (bool, error)
}

// ConfigResolver resolves entitlements from the static configuration.
type ConfigResolver struct {
	cfg *config.Config
}

// NewConfigResolver constructs a config-backed resolver.
func NewConfigResolver(cfg *config.Config) *ConfigResolver {
	return &ConfigResolver{cfg: cfg}
}

// CreativeQCEnabled implements Resolver.
func (r *ConfigResolver) CreativeQCEnabled(_ context.Context, orgID string) (bool, error) {
	return r.cfg.CreativeQCEnabled(orgID), nil
}

// Static is a fixed-answer resolver for tests.
type Static bool

// CreativeQCEnabled implements Resolver.
func (s Static) CreativeQCEnabled(context.Context, string) (bool, error) {
	return bool(s), nil
}
