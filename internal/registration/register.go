package registration

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
)

// Register admits a new entity with a secret and binds a credential to it.
// An empty secret registers the pioneer, which is only legal before any
// root exists. Failures are *fault.Error.
func (c *Coordinator) Register(ctx context.Context, secretInput, username, password string) (Result, error) {
	if err := c.validateCredentials(username, password); err != nil {
		return Result{}, err
	}

	exists, err := c.proj.UsernameExists(ctx, username)
	if err != nil {
		return Result{}, fault.Wrap(fault.DatabaseError, "check username", err)
	}
	if exists {
		return Result{}, fault.Newf(fault.UsernameExists, "username %q is taken", username)
	}

	if !credential.Available(c.hasher) || !credential.Available(c.tokens) {
		return Result{}, fault.New(fault.CredentialsUnavailable, "password hashing or token issuance is not configured")
	}

	if strings.TrimSpace(secretInput) == "" {
		return c.registerPioneer(ctx, username, password)
	}

	secret, err := record.NormalizeSecret(secretInput)
	if err != nil {
		return Result{}, fault.Wrap(fault.InvalidSecret, "malformed secret", err)
	}
	return c.registerWithSecret(ctx, secret, username, password)
}

func (c *Coordinator) validateCredentials(username, password string) error {
	switch n := utf8.RuneCountInString(username); {
	case strings.TrimSpace(username) == "":
		return fault.New(fault.InvalidRequest, "username is required")
	case n > c.maxUsernameLen:
		return fault.Newf(fault.InvalidRequest, "username is %d characters, limit is %d", n, c.maxUsernameLen)
	case !utf8.ValidString(username):
		return fault.New(fault.InvalidRequest, "username is not valid UTF-8")
	}
	if password == "" {
		return fault.New(fault.InvalidRequest, "password is required")
	}
	return nil
}

func (c *Coordinator) registerWithSecret(ctx context.Context, secret record.Address, username, password string) (Result, error) {
	used, err := c.ledger.IsSecretUsed(secret)
	if err != nil {
		return Result{}, classifyLedgerRead("check secret", err)
	}
	if used {
		return Result{}, fault.New(fault.UsedSecret, "secret has already been used")
	}

	s, err := c.ledger.Secret(secret)
	if err != nil {
		return Result{}, classifyLedgerRead("read secret", err)
	}
	ancestor, err := c.proj.EntityByAddress(ctx, s.Author)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			c.logger.Error("secret author has no projection row", "secret", secret, "author", s.Author)
			return Result{}, fault.Newf(fault.AncestorNotFound, "author %s of the secret is not registered", s.Author)
		}
		return Result{}, fault.Wrap(fault.DatabaseError, "look up ancestor", err)
	}

	hash, err := c.hashPassword(password)
	if err != nil {
		return Result{}, err
	}

	minted, err := c.ledger.MintEntity(secret)
	if err != nil {
		if errors.Is(err, ledger.ErrSecretAlreadyUsed) {
			return Result{}, fault.New(fault.UsedSecret, "secret has already been used")
		}
		return Result{}, fault.Wrap(fault.EntityMintFailed, "mint entity", err)
	}
	if !minted.Valid() || minted.Kind() != record.KindEntity {
		return Result{}, fault.Newf(fault.EntityMintFailed, "ledger returned %q, not an entity address", minted)
	}

	entity, err := c.fetchMinted(minted, s.Author)
	if err != nil {
		c.reportOrphan(secret, minted, err)
		return Result{}, fault.Wrap(fault.DatabaseError, "read minted entity", err)
	}

	reg, err := c.proj.CommitRegistration(ctx, projection.Registration{
		EntityAddress: entity.Self,
		AncestorID:    ancestor.ID,
		SecretAddress: secret,
		Username:      username,
		PasswordHash:  hash,
	})
	if err != nil {
		c.reportOrphan(secret, entity.Self, err)
		return Result{}, classifyCommit(err)
	}

	c.confirmSecret(secret, entity.Self)
	c.logger.Info("entity registered", "username", username, "entity_id", reg.Entity.ID, "address", entity.Self, "ancestor_id", ancestor.ID)
	return c.issue(reg.Entity.ID, username, entity.Self)
}

// registerPioneer handles the no-secret branch: the caller becomes the root
// and is considered to have used the root's automatic secret.
func (c *Coordinator) registerPioneer(ctx context.Context, username, password string) (Result, error) {
	_, err := c.proj.FindRoot(ctx)
	switch {
	case err == nil:
		return Result{}, fault.New(fault.InvalidSecret, "a secret is required once the root exists")
	case !errors.Is(err, projection.ErrNotFound):
		return Result{}, fault.Wrap(fault.DatabaseError, "find root", err)
	}

	hash, err := c.hashPassword(password)
	if err != nil {
		return Result{}, err
	}

	b, err := c.ledger.BootstrapRoot()
	if err != nil {
		return Result{}, fault.Wrap(fault.EntityMintFailed, "bootstrap root", err)
	}

	reg, err := c.proj.CommitRegistration(ctx, projection.Registration{
		EntityAddress: b.Root,
		Root:          true,
		SecretAddress: b.Secret,
		Username:      username,
		PasswordHash:  hash,
	})
	if err != nil {
		if errors.Is(err, projection.ErrRootConflict) {
			return Result{}, fault.New(fault.InvalidSecret, "a secret is required once the root exists")
		}
		return Result{}, classifyCommit(err)
	}

	c.confirmSecret(b.Secret, b.Root)
	c.logger.Info("pioneer registered", "username", username, "entity_id", reg.Entity.ID, "address", b.Root)
	return c.issue(reg.Entity.ID, username, b.Root)
}

func (c *Coordinator) hashPassword(password string) (string, error) {
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return "", fault.Wrap(fault.CredentialsUnavailable, "hash password", err)
	}
	return hash, nil
}

// fetchMinted reads the new entity back, first by address, then from the
// ancestor-scoped copy.
func (c *Coordinator) fetchMinted(addr, ancestor record.Address) (record.Entity, error) {
	e, err := c.ledger.Entity(addr)
	if err == nil {
		return e, nil
	}
	c.logger.Warn("minted entity lookup failed, trying scoped copy", "entity", addr, "error", err)
	e, scopedErr := c.ledger.EntityScoped(ancestor, addr)
	if scopedErr != nil {
		return record.Entity{}, errors.Join(err, scopedErr)
	}
	return e, nil
}

// confirmSecret is step 9. The ledger flag was already flipped by the mint;
// a failure here is logged and swallowed.
func (c *Coordinator) confirmSecret(secret, consumer record.Address) {
	if _, err := c.ledger.MarkSecretUsed(secret, consumer); err != nil {
		c.logger.Warn("ledger secret confirmation failed", "secret", secret, "consumer", consumer, "error", err)
	}
}

func (c *Coordinator) reportOrphan(secret, entity record.Address, cause error) {
	c.logger.Error("registration failed after ledger mint; secret is consumed with no registered user",
		"secret", secret, "entity", entity, "error", cause)
}

func (c *Coordinator) issue(entityID int64, username string, addr record.Address) (Result, error) {
	token, err := c.tokens.Issue(entityID, username, string(addr))
	if err != nil {
		return Result{}, fault.Wrap(fault.CredentialsUnavailable, "issue token", err)
	}
	return Result{
		Token:  token,
		Entity: EntitySummary{ID: entityID, Address: addr, Username: username},
	}, nil
}

// classifyLedgerRead maps ledger lookups of a user-supplied secret.
func classifyLedgerRead(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrWrongKind),
		errors.Is(err, record.ErrInvalidAddress):
		return fault.Wrap(fault.InvalidSecret, "unknown secret", err)
	default:
		return fault.Wrap(fault.DatabaseError, op, err)
	}
}

func classifyCommit(err error) error {
	switch {
	case errors.Is(err, projection.ErrUsernameTaken):
		return fault.Wrap(fault.UsernameExists, "username is taken", err)
	case errors.Is(err, projection.ErrSecretUsed):
		return fault.Wrap(fault.UsedSecret, "secret has already been used", err)
	default:
		return fault.Wrap(fault.DatabaseError, "commit registration", err)
	}
}
