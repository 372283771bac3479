package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cofounder/internal/config"
	"cofounder/internal/domain"
	"cofounder/internal/repo"
)

// ResolveBusinessAndConfig picks the active business and ensures a business +
// config exist in DB, seeding defaults if missing. It prefers overrides, then
// the single-business DB. If the business does not exist, it is created on the
// fly.
func ResolveBusinessAndConfig(ctx context.Context, workspace, businessOverride string, r repo.Repo) (string, *config.Config, error) {
	businessID := businessOverride
	if businessID == "" {
		if b, err := r.SingleBusiness(ctx); err == nil {
			businessID = b.ID
		} else {
			return "", nil, fmt.Errorf("business not specified; use --business")
		}
	}
	seedCfg := config.Default(businessID)

	if _, err := r.GetBusiness(ctx, businessID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createBusiness(ctx, r, businessID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetBusinessConfig(ctx, businessID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertBusinessConfig(ctx, businessID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed business config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Business.ID = businessID
	return businessID, cfg, nil
}

// createBusiness inserts a minimal business footprint using the seed config.
func createBusiness(ctx context.Context, r repo.Repo, businessID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(businessID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	name := seedCfg.Business.Name
	if name == "" {
		name = businessID
	}
	if err := r.InsertBusiness(ctx, domain.Business{
		ID:        businessID,
		Name:      name,
		Industry:  seedCfg.Business.Industry,
		Status:    "active",
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	if err := r.UpsertBusinessConfig(ctx, businessID, seedCfg); err != nil {
		return fmt.Errorf("insert business config: %w", err)
	}
	return nil
}
