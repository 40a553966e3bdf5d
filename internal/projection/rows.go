package projection

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/pathchain/internal/record"
)

// EntityRow mirrors a ledger entity.
type EntityRow struct {
	ID      int64
	Address record.Address
	// AncestorID is 0 for the root and for rows whose link is missing.
	AncestorID int64
	IsRoot     bool
	CreatedAt  time.Time
}

// HasAncestorLink reports whether the ancestor foreign key is populated.
func (e EntityRow) HasAncestorLink() bool { return e.AncestorID != 0 }

// SecretRow mirrors a ledger secret.
type SecretRow struct {
	ID      int64
	Address record.Address
	OwnerID int64
	// UsedAt is zero while the secret is unused.
	UsedAt     time.Time
	ConsumerID int64
}

// Used reports whether the row records the secret as consumed.
func (s SecretRow) Used() bool { return !s.UsedAt.IsZero() }

// CredentialRow binds a username to an entity.
type CredentialRow struct {
	Username     string
	EntityID     int64
	PasswordHash string
	SecretID     int64
	CreatedAt    time.Time
}

type scanner interface {
	Scan(dest ...any) error
}

const entityColumns = `id, address, ancestor_id, is_root, created_at`

func scanEntity(row scanner) (EntityRow, error) {
	var (
		e        EntityRow
		address  string
		ancestor sql.NullInt64
		created  string
	)
	if err := row.Scan(&e.ID, &address, &ancestor, &e.IsRoot, &created); err != nil {
		return EntityRow{}, err
	}
	e.Address = record.Address(address)
	e.AncestorID = ancestor.Int64
	t, err := parseTime(created)
	if err != nil {
		return EntityRow{}, fmt.Errorf("entity %d created_at: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}

const secretColumns = `id, address, owner_id, used_at, consumer_id`

func scanSecret(row scanner) (SecretRow, error) {
	var (
		s        SecretRow
		address  string
		usedAt   sql.NullString
		consumer sql.NullInt64
	)
	if err := row.Scan(&s.ID, &address, &s.OwnerID, &usedAt, &consumer); err != nil {
		return SecretRow{}, err
	}
	s.Address = record.Address(address)
	s.ConsumerID = consumer.Int64
	if usedAt.Valid {
		t, err := parseTime(usedAt.String)
		if err != nil {
			return SecretRow{}, fmt.Errorf("secret %d used_at: %w", s.ID, err)
		}
		s.UsedAt = t
	}
	return s, nil
}

const credentialColumns = `username, entity_id, password_hash, secret_id, created_at`

func scanCredential(row scanner) (CredentialRow, error) {
	var (
		c       CredentialRow
		secret  sql.NullInt64
		created string
	)
	if err := row.Scan(&c.Username, &c.EntityID, &c.PasswordHash, &secret, &created); err != nil {
		return CredentialRow{}, err
	}
	c.SecretID = secret.Int64
	t, err := parseTime(created)
	if err != nil {
		return CredentialRow{}, fmt.Errorf("credential %q created_at: %w", c.Username, err)
	}
	c.CreatedAt = t
	return c, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
