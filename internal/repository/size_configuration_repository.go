package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sahabatquran/classgen-api/internal/models"
)

// SizeConfigurationRepository persists class-size bounds.
type SizeConfigurationRepository struct {
	db *sqlx.DB
}

// NewSizeConfigurationRepository constructs the repository.
func NewSizeConfigurationRepository(db *sqlx.DB) *SizeConfigurationRepository {
	return &SizeConfigurationRepository{db: db}
}

// List returns every size configuration row, defaults first.
func (r *SizeConfigurationRepository) List(ctx context.Context) ([]models.SizeConfiguration, error) {
	const query = `SELECT id, config_key, config_value, level_id, description, updated_at
FROM class_size_configurations ORDER BY level_id NULLS FIRST, config_key ASC`
	var configs []models.SizeConfiguration
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list size configurations: %w", err)
	}
	return configs, nil
}

// Upsert inserts or updates one bound, keyed by (config_key, level_id).
func (r *SizeConfigurationRepository) Upsert(ctx context.Context, cfg *models.SizeConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO class_size_configurations (id, config_key, config_value, level_id, description, updated_at)
VALUES (:id, :config_key, :config_value, :level_id, :description, :updated_at)
ON CONFLICT (config_key, level_id)
DO UPDATE SET config_value = EXCLUDED.config_value, description = EXCLUDED.description,
              updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert size configuration: %w", err)
	}
	return nil
}
