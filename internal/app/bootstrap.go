// Package app wires the store profile together at process start.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tableside/internal/config"
	"tableside/internal/repo"
)

// ResolveStoreConfig returns the effective store profile. A tableside.yml in
// the workspace wins and is mirrored into the database; otherwise the stored
// profile is used; a fresh workspace is seeded with defaults.
func ResolveStoreConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := upsert(ctx, r, fileCfg); err != nil {
			return nil, err
		}
		return fileCfg, nil
	}

	yamlText, err := r.GetStoreConfig(ctx)
	if err == nil {
		cfg, perr := config.FromYAML([]byte(yamlText))
		if perr != nil {
			return nil, fmt.Errorf("stored config is corrupt: %w", perr)
		}
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	cfg := config.Default()
	if err := upsert(ctx, r, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func upsert(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	data, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.UpsertStoreConfig(ctx, string(data), now); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}
