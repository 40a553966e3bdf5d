package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pathchain/internal/record"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureRoot mirrors the ledger root and (if given) its automatic secret.
// Idempotent; a different existing root is ErrRootConflict.
func (s *Store) EnsureRoot(ctx context.Context, root, secret record.Address) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return EntityRow{}, classify("ensure root: begin", err)
	}
	defer tx.Rollback() // No-op if committed

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (address, ancestor_id, is_root, created_at)
		VALUES (?, NULL, 1, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(root), formatTime(now))
	if err != nil {
		if isUniqueViolation(err, "entities.is_root") {
			return EntityRow{}, fmt.Errorf("ensure root %s: %w", root, ErrRootConflict)
		}
		return EntityRow{}, classify("ensure root", err)
	}

	row, err := scanEntity(tx.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE address = ?`, string(root)))
	if err != nil {
		return EntityRow{}, classify("ensure root", err)
	}
	if !row.IsRoot {
		return EntityRow{}, fmt.Errorf("ensure root %s: %w", root, ErrRootConflict)
	}

	if secret != "" {
		if _, err := insertSecret(ctx, tx, secret, row.ID); err != nil {
			return EntityRow{}, classify("ensure root secret", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return EntityRow{}, classify("ensure root: commit", err)
	}
	return row, nil
}

// InsertEntity adds a non-root entity row. ancestorID 0 leaves the
// ancestor link unset. Inserting an existing address returns the stored row.
func (s *Store) InsertEntity(ctx context.Context, addr record.Address, ancestorID int64) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row, err := s.insertEntity(ctx, s.db, addr, ancestorID)
	if err != nil {
		return EntityRow{}, classify("insert entity", err)
	}
	return row, nil
}

func (s *Store) insertEntity(ctx context.Context, db execer, addr record.Address, ancestorID int64) (EntityRow, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entities (address, ancestor_id, is_root, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(addr), nullID(ancestorID), formatTime(s.now()))
	if err != nil {
		return EntityRow{}, err
	}
	return scanEntity(db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE address = ?`, string(addr)))
}

// InsertSecret adds an unused secret row owned by ownerID. Inserting an
// existing address returns the stored row unchanged.
func (s *Store) InsertSecret(ctx context.Context, addr record.Address, ownerID int64) (SecretRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row, err := insertSecret(ctx, s.db, addr, ownerID)
	if err != nil {
		return SecretRow{}, classify("insert secret", err)
	}
	return row, nil
}

func insertSecret(ctx context.Context, db execer, addr record.Address, ownerID int64) (SecretRow, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO secrets (address, owner_id)
		VALUES (?, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(addr), ownerID)
	if err != nil {
		return SecretRow{}, err
	}
	return scanSecret(db.QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE address = ?`, string(addr)))
}

// SetAncestor fills in a missing ancestor link. Rows that already have a
// link, and the root, are left alone.
func (s *Store) SetAncestor(ctx context.Context, entityID, ancestorID int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		UPDATE entities SET ancestor_id = ?
		WHERE id = ? AND is_root = 0 AND ancestor_id IS NULL
	`, ancestorID, entityID)
	if err != nil {
		return classify("set ancestor", err)
	}
	return nil
}

// Registration is the set of rows a successful registration writes.
type Registration struct {
	EntityAddress record.Address
	// Root registers the pioneer itself; AncestorID is ignored and the
	// secret is owned by the new row.
	Root bool
	// AncestorID is the sponsoring entity row, which also owns the secret.
	AncestorID    int64
	SecretAddress record.Address
	Username      string
	PasswordHash  string
}

// Registered holds the rows written by CommitRegistration.
type Registered struct {
	Entity     EntityRow
	Secret     SecretRow
	Credential CredentialRow
}

// CommitRegistration writes the entity row, marks the secret row used and
// binds the credential, all in one transaction. On any failure nothing is
// written.
//
// Errors: ErrUsernameTaken, ErrSecretUsed, ErrRootConflict, ErrPoolTimeout,
// or a wrapped driver error.
func (s *Store) CommitRegistration(ctx context.Context, reg Registration) (Registered, error) {
	if !reg.Root && reg.AncestorID == 0 {
		return Registered{}, errors.New("commit registration: ancestor row is required")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Registered{}, classify("commit registration: begin", err)
	}
	defer tx.Rollback() // No-op if committed

	now := s.now().UTC()
	entity, err := s.insertRegisteredEntity(ctx, tx, reg, now)
	if err != nil {
		return Registered{}, err
	}

	owner := reg.AncestorID
	if reg.Root {
		owner = entity.ID
	}
	secret, err := markSecretUsed(ctx, tx, reg.SecretAddress, owner, entity.ID, now)
	if err != nil {
		return Registered{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (username, entity_id, password_hash, secret_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, reg.Username, entity.ID, reg.PasswordHash, secret.ID, formatTime(now))
	if err != nil {
		if isUniqueViolation(err, "credentials.username") {
			return Registered{}, fmt.Errorf("commit registration %q: %w", reg.Username, ErrUsernameTaken)
		}
		return Registered{}, classify("commit registration: insert credential", err)
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(ctx); err != nil {
			return Registered{}, fmt.Errorf("commit registration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Registered{}, classify("commit registration: commit", err)
	}

	s.logger.Debug("registration committed", "username", reg.Username, "entity_id", entity.ID, "address", reg.EntityAddress)
	return Registered{
		Entity: entity,
		Secret: secret,
		Credential: CredentialRow{
			Username:     reg.Username,
			EntityID:     entity.ID,
			PasswordHash: reg.PasswordHash,
			SecretID:     secret.ID,
			CreatedAt:    now,
		},
	}, nil
}

func (s *Store) insertRegisteredEntity(ctx context.Context, tx *sql.Tx, reg Registration, now time.Time) (EntityRow, error) {
	var (
		ancestor sql.NullInt64
		isRoot   int
	)
	if reg.Root {
		isRoot = 1
	} else {
		ancestor = nullID(reg.AncestorID)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entities (address, ancestor_id, is_root, created_at)
		VALUES (?, ?, ?, ?)
	`, string(reg.EntityAddress), ancestor, isRoot, formatTime(now))
	if err != nil {
		// A second pioneer can collide on the root address or the single-root
		// index; SQLite reports whichever it checks first.
		if reg.Root && (isUniqueViolation(err, "entities.is_root") || isUniqueViolation(err, "entities.address")) {
			return EntityRow{}, fmt.Errorf("commit registration: %w", ErrRootConflict)
		}
		return EntityRow{}, classify("commit registration: insert entity", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return EntityRow{}, classify("commit registration: insert entity", err)
	}
	return EntityRow{
		ID:         id,
		Address:    reg.EntityAddress,
		AncestorID: ancestor.Int64,
		IsRoot:     reg.Root,
		CreatedAt:  now,
	}, nil
}

// markSecretUsed upserts the secret row as used by consumer. The update
// only applies while used_at is NULL; an already-used row is ErrSecretUsed.
func markSecretUsed(ctx context.Context, db execer, addr record.Address, owner, consumer int64, now time.Time) (SecretRow, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO secrets (address, owner_id, used_at, consumer_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE
		SET used_at = excluded.used_at, consumer_id = excluded.consumer_id
		WHERE secrets.used_at IS NULL
	`, string(addr), owner, formatTime(now), consumer)
	if err != nil {
		return SecretRow{}, classify("mark secret used", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return SecretRow{}, classify("mark secret used", err)
	}
	if n == 0 {
		return SecretRow{}, fmt.Errorf("mark secret used %s: %w", addr, ErrSecretUsed)
	}

	row, err := scanSecret(db.QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE address = ?`, string(addr)))
	if err != nil {
		return SecretRow{}, classify("mark secret used", err)
	}
	return row, nil
}

// AdoptOrphan mirrors a ledger entity that was minted but never committed
// here (the registration transaction rolled back after the mint). The
// entity gets a row linked to its ancestor and its secret row is marked
// used; no credential is created.
func (s *Store) AdoptOrphan(ctx context.Context, entity record.Address, ancestorID int64, secret record.Address) (EntityRow, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return EntityRow{}, classify("adopt orphan: begin", err)
	}
	defer tx.Rollback() // No-op if committed

	row, err := s.insertEntity(ctx, tx, entity, ancestorID)
	if err != nil {
		return EntityRow{}, classify("adopt orphan", err)
	}
	if _, err := markSecretUsed(ctx, tx, secret, ancestorID, row.ID, s.now().UTC()); err != nil {
		return EntityRow{}, fmt.Errorf("adopt orphan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return EntityRow{}, classify("adopt orphan: commit", err)
	}
	s.logger.Info("orphan adopted", "entity", entity, "entity_id", row.ID)
	return row, nil
}
