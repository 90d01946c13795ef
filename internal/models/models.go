package models

import (
	"database/sql"
	"time"
)

// Operator is a wager system allowed to request drops
type Operator struct {
	ID          int          `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	KeyHash     string       `db:"key_hash" json:"-"`
	IsActive    bool         `db:"is_active" json:"is_active"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	LastLoginAt sql.NullTime `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Drop is the stored outcome of one server-side drop
type Drop struct {
	ID                string    `db:"id" json:"id"`
	Operator          string    `db:"operator" json:"operator"`
	Board             string    `db:"board" json:"board"`
	Rows              int       `db:"row_count" json:"rows"`
	TargetMultiplier  float64   `db:"target_multiplier" json:"target_multiplier"`
	Bucket            int       `db:"bucket" json:"bucket"`
	Multiplier        float64   `db:"multiplier" json:"multiplier"`
	DisplayMultiplier float64   `db:"display_multiplier" json:"display_multiplier"`
	Forced            bool      `db:"forced" json:"forced"`
	Steps             int       `db:"steps" json:"steps"`
	ServerSeed        string    `db:"server_seed" json:"server_seed"`
	ServerSeedHash    string    `db:"server_seed_hash" json:"server_seed_hash"`
	ClientSeed        string    `db:"client_seed" json:"client_seed"`
	Nonce             int64     `db:"nonce" json:"nonce"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
