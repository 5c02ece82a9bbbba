package app

import (
	"context"
	"fmt"
	"time"

	"reqline/internal/config"
	"reqline/internal/repo"
)

// Bootstrap loads (or defaults) the platform config for a workspace and
// makes sure the department catalog it names exists in the database.
// Called by every CLI command and the serve path so a fresh workspace
// works without a manual seeding step.
func Bootstrap(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("reqline")
	}
	if err := seedDepartments(ctx, r, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func seedDepartments(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	if len(cfg.Departments) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, name := range cfg.Departments {
		if err := r.EnsureDepartment(ctx, tx, name, now); err != nil {
			return fmt.Errorf("seed department %s: %w", name, err)
		}
	}
	return tx.Commit()
}
