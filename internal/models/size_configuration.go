package models

import "time"

// Config keys for system-wide class size defaults.
const (
	SizeKeyDefaultMin = "default.min"
	SizeKeyDefaultMax = "default.max"
)

// SizeConfiguration holds a class-size bound, either a system default
// (LevelID nil) or a per-level override.
type SizeConfiguration struct {
	ID          string    `db:"id" json:"id"`
	ConfigKey   string    `db:"config_key" json:"config_key"`
	ConfigValue int       `db:"config_value" json:"config_value"`
	LevelID     *string   `db:"level_id" json:"level_id,omitempty"`
	Description string    `db:"description" json:"description"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
