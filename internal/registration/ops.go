package registration

import (
	"context"
	"errors"
	"strings"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
)

// SecretStatus is the answer of CheckSecret.
type SecretStatus struct {
	Address record.Address `json:"address,omitempty"`
	Valid   bool           `json:"valid"`
	Unused  bool           `json:"unused"`
}

// CheckSecret inspects a secret without changing anything. Malformed and
// unknown secrets are reported as invalid, not as errors.
func (c *Coordinator) CheckSecret(ctx context.Context, secretInput string) (SecretStatus, error) {
	if strings.TrimSpace(secretInput) == "" {
		return SecretStatus{}, fault.New(fault.InvalidRequest, "secret is required")
	}
	addr, err := record.NormalizeSecret(secretInput)
	if err != nil {
		return SecretStatus{}, nil
	}
	used, err := c.ledger.IsSecretUsed(addr)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return SecretStatus{Address: addr}, nil
		}
		return SecretStatus{}, fault.Wrap(fault.DatabaseError, "check secret", err)
	}
	return SecretStatus{Address: addr, Valid: true, Unused: !used}, nil
}

// BootstrapResult reports the root and its unused secrets.
type BootstrapResult struct {
	Root    projection.EntityRow
	Secrets []projection.SecretRow
	// Created is true only when this call minted the root.
	Created bool
}

// Bootstrap mints the root if needed and mirrors it into the projection.
// Idempotent: later calls return the same root with whatever secrets it
// still has unused, so a lost first invitation can be shown again.
func (c *Coordinator) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	b, err := c.ledger.BootstrapRoot()
	if err != nil {
		return BootstrapResult{}, fault.Wrap(fault.EntityMintFailed, "bootstrap root", err)
	}

	// A root secret the ledger already saw consumed must not be mirrored as unused.
	secret := b.Secret
	used, err := c.ledger.IsSecretUsed(b.Secret)
	if err != nil {
		return BootstrapResult{}, fault.Wrap(fault.DatabaseError, "check root secret", err)
	}
	if used {
		secret = ""
	}

	root, err := c.proj.EnsureRoot(ctx, b.Root, secret)
	if err != nil {
		if errors.Is(err, projection.ErrRootConflict) {
			c.logger.Error("projection root differs from ledger root", "ledger_root", b.Root)
		}
		return BootstrapResult{}, fault.Wrap(fault.DatabaseError, "mirror root", err)
	}

	secrets, err := c.proj.FindUnconsumedSecretsOwnedBy(ctx, root.ID)
	if err != nil {
		return BootstrapResult{}, fault.Wrap(fault.DatabaseError, "list root secrets", err)
	}
	return BootstrapResult{Root: root, Secrets: secrets, Created: b.Created}, nil
}

// IssueSecret creates a new invitation authored by a registered entity.
func (c *Coordinator) IssueSecret(ctx context.Context, entityID int64) (projection.SecretRow, error) {
	author, err := c.proj.EntityByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return projection.SecretRow{}, fault.Newf(fault.NotFound, "entity %d not found", entityID)
		}
		return projection.SecretRow{}, fault.Wrap(fault.DatabaseError, "look up author", err)
	}

	addr, err := c.ledger.IssueSecret(author.Address)
	if err != nil {
		return projection.SecretRow{}, fault.Wrap(fault.DatabaseError, "issue secret", err)
	}
	row, err := c.proj.InsertSecret(ctx, addr, author.ID)
	if err != nil {
		return projection.SecretRow{}, fault.Wrap(fault.DatabaseError, "mirror secret", err)
	}
	c.logger.Info("secret issued", "secret", addr, "author_id", author.ID)
	return row, nil
}

// Login verifies a credential and issues a fresh token.
func (c *Coordinator) Login(ctx context.Context, username, password string) (Result, error) {
	if username == "" || password == "" {
		return Result{}, fault.New(fault.InvalidRequest, "username and password are required")
	}
	if !credential.Available(c.hasher) || !credential.Available(c.tokens) {
		return Result{}, fault.New(fault.CredentialsUnavailable, "password hashing or token issuance is not configured")
	}

	cred, err := c.proj.Credential(ctx, username)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return Result{}, fault.New(fault.InvalidCredentials, "invalid username or password")
		}
		return Result{}, fault.Wrap(fault.DatabaseError, "look up credential", err)
	}
	ok, err := c.hasher.Verify(cred.PasswordHash, password)
	if err != nil {
		return Result{}, fault.Wrap(fault.CredentialsUnavailable, "verify password", err)
	}
	if !ok {
		return Result{}, fault.New(fault.InvalidCredentials, "invalid username or password")
	}

	entity, err := c.proj.EntityByID(ctx, cred.EntityID)
	if err != nil {
		return Result{}, fault.Wrap(fault.DatabaseError, "look up entity", err)
	}
	return c.issue(entity.ID, username, entity.Address)
}

// Orphan is a consumed ledger secret whose consumer has no projection row.
type Orphan struct {
	Secret record.Address `json:"secret"`
	Entity record.Address `json:"entity"`
	Author record.Address `json:"author"`
}

// FindOrphans scans the ledger for secrets consumed by entities the
// projection does not know. Returns an empty slice when consistent.
func (c *Coordinator) FindOrphans(ctx context.Context) ([]Orphan, error) {
	secrets, err := c.ledger.Secrets()
	if err != nil {
		return nil, fault.Wrap(fault.DatabaseError, "list ledger secrets", err)
	}
	orphans := []Orphan{}
	for _, s := range secrets {
		if !s.Consumed {
			continue
		}
		_, err := c.proj.EntityByAddress(ctx, s.Consumer)
		if err == nil {
			continue
		}
		if !errors.Is(err, projection.ErrNotFound) {
			return nil, fault.Wrap(fault.DatabaseError, "look up consumer", err)
		}
		orphans = append(orphans, Orphan{Secret: s.Self, Entity: s.Consumer, Author: s.Author})
	}
	return orphans, nil
}

// AdoptOrphan mirrors an orphaned ledger entity into the projection so
// lineage queries reach it. No credential is created; the entity has no
// login until an operator issues one out of band.
func (c *Coordinator) AdoptOrphan(ctx context.Context, entityAddr record.Address) (projection.EntityRow, error) {
	if row, err := c.proj.EntityByAddress(ctx, entityAddr); err == nil {
		return row, nil
	} else if !errors.Is(err, projection.ErrNotFound) {
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "look up entity", err)
	}

	e, err := c.ledger.Entity(entityAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, record.ErrInvalidAddress) || errors.Is(err, ledger.ErrWrongKind) {
			return projection.EntityRow{}, fault.Wrap(fault.NotFound, "entity not in ledger", err)
		}
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "read entity", err)
	}
	if e.IsPioneer() {
		return projection.EntityRow{}, fault.New(fault.InvalidRequest, "the root is mirrored by bootstrap, not adopted")
	}

	ancestor, err := c.proj.EntityByAddress(ctx, e.Ancestor.Ref())
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return projection.EntityRow{}, fault.Newf(fault.AncestorNotFound, "ancestor %s is not in the projection", e.Ancestor.Ref())
		}
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "look up ancestor", err)
	}

	row, err := c.proj.AdoptOrphan(ctx, entityAddr, ancestor.ID, e.Secret)
	if err != nil {
		if errors.Is(err, projection.ErrSecretUsed) {
			return projection.EntityRow{}, fault.Wrap(fault.UsedSecret, "secret row already records a consumer", err)
		}
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "adopt orphan", err)
	}
	return row, nil
}
