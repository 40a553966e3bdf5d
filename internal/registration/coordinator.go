package registration

import (
	"context"
	"log/slog"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
)

// DefaultMaxUsernameLength bounds usernames, in characters.
const DefaultMaxUsernameLength = 255

// Ledger is the subset of *ledger.Ledger the coordinator uses.
type Ledger interface {
	BootstrapRoot() (ledger.Bootstrap, error)
	IssueSecret(author record.Address) (record.Address, error)
	IsSecretUsed(secret record.Address) (bool, error)
	Secret(addr record.Address) (record.Secret, error)
	Entity(addr record.Address) (record.Entity, error)
	EntityScoped(ancestor, addr record.Address) (record.Entity, error)
	MintEntity(secret record.Address) (record.Address, error)
	MarkSecretUsed(secret, consumer record.Address) (record.Secret, error)
	Secrets() ([]record.Secret, error)
}

// Projection is the subset of *projection.Store the coordinator uses.
type Projection interface {
	FindRoot(ctx context.Context) (projection.EntityRow, error)
	EnsureRoot(ctx context.Context, root, secret record.Address) (projection.EntityRow, error)
	UsernameExists(ctx context.Context, name string) (bool, error)
	EntityByID(ctx context.Context, id int64) (projection.EntityRow, error)
	EntityByAddress(ctx context.Context, addr record.Address) (projection.EntityRow, error)
	FindUnconsumedSecretsOwnedBy(ctx context.Context, entityID int64) ([]projection.SecretRow, error)
	InsertSecret(ctx context.Context, addr record.Address, ownerID int64) (projection.SecretRow, error)
	Credential(ctx context.Context, username string) (projection.CredentialRow, error)
	CommitRegistration(ctx context.Context, reg projection.Registration) (projection.Registered, error)
	AdoptOrphan(ctx context.Context, entity record.Address, ancestorID int64, secret record.Address) (projection.EntityRow, error)
}

var (
	_ Ledger     = (*ledger.Ledger)(nil)
	_ Projection = (*projection.Store)(nil)
)

// Coordinator is the registration entry point. Safe for concurrent use.
type Coordinator struct {
	ledger Ledger
	proj   Projection
	hasher credential.Hasher
	tokens credential.Issuer

	maxUsernameLen int
	logger         *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxUsernameLength overrides DefaultMaxUsernameLength.
func WithMaxUsernameLength(n int) Option {
	return func(c *Coordinator) { c.maxUsernameLen = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a coordinator. A nil hasher or issuer is treated as
// credential.Unavailable.
func New(l Ledger, p Projection, hasher credential.Hasher, tokens credential.Issuer, opts ...Option) *Coordinator {
	if hasher == nil {
		hasher = credential.Unavailable{}
	}
	if tokens == nil {
		tokens = credential.Unavailable{}
	}
	c := &Coordinator{
		ledger:         l,
		proj:           p,
		hasher:         hasher,
		tokens:         tokens,
		maxUsernameLen: DefaultMaxUsernameLength,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EntitySummary identifies a registered entity.
type EntitySummary struct {
	ID       int64          `json:"id"`
	Address  record.Address `json:"address"`
	Username string         `json:"username"`
}

// Result is returned by Register and Login.
type Result struct {
	Token  string        `json:"token"`
	Entity EntitySummary `json:"entity"`
}
