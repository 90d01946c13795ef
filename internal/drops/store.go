package drops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/plinko/internal/models"
)

// ErrNotFound is returned when a drop id is unknown.
var ErrNotFound = errors.New("drop not found")

const dropColumns = `id, operator, board, row_count, target_multiplier, bucket, multiplier,
	display_multiplier, forced, steps, server_seed, server_seed_hash, client_seed, nonce, created_at`

// Store persists drop outcomes.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Save inserts d, assigning its id and creation time when unset.
func (s *Store) Save(ctx context.Context, d *models.Drop) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := s.db.Rebind(`INSERT INTO drops (` + dropColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Operator, d.Board, d.Rows, d.TargetMultiplier, d.Bucket, d.Multiplier,
		d.DisplayMultiplier, d.Forced, d.Steps, d.ServerSeed, d.ServerSeedHash, d.ClientSeed, d.Nonce, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert drop: %w", err)
	}
	return nil
}

// Get returns one drop by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Drop, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var d models.Drop
	err := s.db.GetContext(ctx, &d, s.db.Rebind(`SELECT `+dropColumns+` FROM drops WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get drop %s: %w", id, err)
	}
	return &d, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Operator string
	Board    string
	Limit    int
	Offset   int
}

// List returns drops newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Drop, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + dropColumns + ` FROM drops WHERE 1=1`
	var args []interface{}
	if f.Operator != "" {
		query += ` AND operator=?`
		args = append(args, f.Operator)
	}
	if f.Board != "" {
		query += ` AND board=?`
		args = append(args, f.Board)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	out := []models.Drop{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list drops: %w", err)
	}
	return out, nil
}

// Totals are aggregate counts over stored drops.
type Totals struct {
	Drops  int64 `db:"drops" json:"drops"`
	Forced int64 `db:"forced" json:"forced"`
}

// Totals counts stored drops, optionally for one operator.
func (s *Store) Totals(ctx context.Context, operator string) (Totals, error) {
	query := `SELECT COUNT(*) AS drops, COALESCE(SUM(CASE WHEN forced THEN 1 ELSE 0 END), 0) AS forced FROM drops`
	var args []interface{}
	if operator != "" {
		query += ` WHERE operator=?`
		args = append(args, operator)
	}
	var t Totals
	if err := s.db.GetContext(ctx, &t, s.db.Rebind(query), args...); err != nil {
		return Totals{}, fmt.Errorf("count drops: %w", err)
	}
	return t, nil
}
