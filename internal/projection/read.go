package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pathchain/internal/record"
)

// FindRoot returns the unique root row, or ErrNotFound.
func (s *Store) FindRoot(ctx context.Context) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE is_root = 1`)
	return oneEntity(row, "find root")
}

// EntityByID looks up an entity row.
func (s *Store) EntityByID(ctx context.Context, id int64) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return oneEntity(row, fmt.Sprintf("entity %d", id))
}

// EntityByAddress looks up the row mirroring a ledger entity.
func (s *Store) EntityByAddress(ctx context.Context, addr record.Address) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE address = ?`, string(addr))
	return oneEntity(row, fmt.Sprintf("entity %s", addr))
}

func oneEntity(row *sql.Row, op string) (EntityRow, error) {
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EntityRow{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return EntityRow{}, classify(op, err)
	}
	return e, nil
}

// SecretByAddress looks up the row mirroring a ledger secret.
func (s *Store) SecretByAddress(ctx context.Context, addr record.Address) (SecretRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE address = ?`, string(addr))
	sec, err := scanSecret(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SecretRow{}, fmt.Errorf("secret %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return SecretRow{}, classify("secret "+string(addr), err)
	}
	return sec, nil
}

// UsernameExists reports whether a credential row holds name.
func (s *Store) UsernameExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM credentials WHERE username = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("username exists", err)
	}
	return true, nil
}

// Credential returns the credential row for username.
func (s *Store) Credential(ctx context.Context, username string) (CredentialRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE username = ?`, username)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialRow{}, fmt.Errorf("credential %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return CredentialRow{}, classify("credential", err)
	}
	return c, nil
}

// CredentialByEntity returns the credential bound to an entity row.
func (s *Store) CredentialByEntity(ctx context.Context, entityID int64) (CredentialRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE entity_id = ?`, entityID)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialRow{}, fmt.Errorf("credential for entity %d: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return CredentialRow{}, classify("credential", err)
	}
	return c, nil
}

// FindUnconsumedSecretsOwnedBy lists the unused secrets an entity authored,
// oldest first. Returns an empty slice (not nil) when there are none.
func (s *Store) FindUnconsumedSecretsOwnedBy(ctx context.Context, entityID int64) ([]SecretRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets
		WHERE owner_id = ? AND used_at IS NULL
		ORDER BY id ASC
	`, entityID)
	if err != nil {
		return nil, classify("query unconsumed secrets", err)
	}
	defer rows.Close()

	secrets := []SecretRow{}
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate secrets", err)
	}
	return secrets, nil
}

// Counts summarizes the projection's size.
type Counts struct {
	Entities    int64 `json:"entities"`
	Secrets     int64 `json:"secrets"`
	UsedSecrets int64 `json:"used_secrets"`
	Credentials int64 `json:"credentials"`
}

// Count returns row counts for every table.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var c Counts
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM entities),
		(SELECT COUNT(*) FROM secrets),
		(SELECT COUNT(*) FROM secrets WHERE used_at IS NOT NULL),
		(SELECT COUNT(*) FROM credentials)`)
	if err := row.Scan(&c.Entities, &c.Secrets, &c.UsedSecrets, &c.Credentials); err != nil {
		return Counts{}, classify("count rows", err)
	}
	return c, nil
}
