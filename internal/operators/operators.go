package operators

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/plinko/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers unknown, inactive and wrong-key operators
// alike so callers cannot probe for names.
var ErrInvalidCredentials = errors.New("invalid operator credentials")

// MinKeyLength is the shortest operator key accepted by Create.
const MinKeyLength = 16

// Get retrieves an operator by name
func Get(db *sqlx.DB, name string) (*models.Operator, error) {
	var op models.Operator
	err := db.Get(&op, db.Rebind(`SELECT id, name, key_hash, is_active, created_at, updated_at, last_login_at FROM operators WHERE name=?`), name)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// VerifyKey checks if the provided key matches the stored hash
func VerifyKey(hashedKey, plainKey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(plainKey)) == nil
}

// Create inserts or re-keys an operator (used for seeding and tests)
func Create(db *sqlx.DB, name, plainKey string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("operator name is empty")
	}
	if len(plainKey) < MinKeyLength {
		return fmt.Errorf("operator key must be at least %d characters", MinKeyLength)
	}

	hashedKey, err := bcrypt.GenerateFromPassword([]byte(plainKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.Exec(db.Rebind(`
		INSERT INTO operators (name, key_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`), name, string(hashedKey), true, now, now)

	return err
}

// Deactivate stops an operator from authenticating
func Deactivate(db *sqlx.DB, name string) error {
	res, err := db.Exec(db.Rebind(`UPDATE operators SET is_active=?, updated_at=? WHERE name=?`), false, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Authenticate validates a name + key combination and records the login
func Authenticate(db *sqlx.DB, name, key string) (*models.Operator, error) {
	op, err := Get(db, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[OPERATOR] No operator named %q", name)
			return nil, ErrInvalidCredentials
		}
		log.Printf("[OPERATOR] Database error: %v", err)
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !op.IsActive {
		log.Printf("[OPERATOR] Inactive operator %q tried to authenticate", name)
		return nil, ErrInvalidCredentials
	}
	if !VerifyKey(op.KeyHash, key) {
		log.Printf("[OPERATOR] Key verification failed for %q", name)
		return nil, ErrInvalidCredentials
	}

	if _, err := db.Exec(db.Rebind(`UPDATE operators SET last_login_at=? WHERE id=?`), time.Now().UTC(), op.ID); err != nil {
		log.Printf("[OPERATOR] Failed to record login for %q: %v", name, err)
	}
	return op, nil
}
