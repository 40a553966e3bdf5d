// Package lineage resolves entity ancestry for audit display.
//
// The projection's ancestor_id link is the fast path. When it is missing
// (rows that predate the link, or rows adopted after a rolled-back
// registration) the resolver reads the entity from the ledger, follows its
// ancestor reference, and writes the link back. It never fabricates a row.
package lineage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
)

// Ledger is the subset of *ledger.Ledger the resolver reads.
type Ledger interface {
	Entity(addr record.Address) (record.Entity, error)
	Moment(addr record.Address) (record.Moment, error)
}

// Projection is the subset of *projection.Store the resolver uses.
type Projection interface {
	EntityByID(ctx context.Context, id int64) (projection.EntityRow, error)
	EntityByAddress(ctx context.Context, addr record.Address) (projection.EntityRow, error)
	CredentialByEntity(ctx context.Context, entityID int64) (projection.CredentialRow, error)
	SetAncestor(ctx context.Context, entityID, ancestorID int64) error
}

var (
	_ Ledger     = (*ledger.Ledger)(nil)
	_ Projection = (*projection.Store)(nil)
)

// EntityInfo merges the projection row with the ledger record.
type EntityInfo struct {
	ID         int64          `json:"id"`
	Address    record.Address `json:"address"`
	CID        string         `json:"cid,omitempty"`
	Username   string         `json:"username,omitempty"`
	IsRoot     bool           `json:"is_root"`
	AncestorID int64          `json:"ancestor_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// Ledger fields; empty when the ledger record could not be read.
	Ancestor     record.Address `json:"ancestor,omitempty"`
	Secret       record.Address `json:"secret,omitempty"`
	RegisteredAt time.Time      `json:"registered_at,omitzero"`
}

// Resolver walks entity ancestry.
type Resolver struct {
	ledger Ledger
	proj   Projection
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver.
func New(l Ledger, p Projection, opts ...Option) *Resolver {
	r := &Resolver{ledger: l, proj: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAncestor returns the ancestor of an entity row. The root is its
// own ancestor.
func (r *Resolver) ResolveAncestor(ctx context.Context, entityID int64) (EntityInfo, error) {
	row, err := r.proj.EntityByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return EntityInfo{}, fault.Newf(fault.NotFound, "entity %d not found", entityID)
		}
		return EntityInfo{}, fault.Wrap(fault.DatabaseError, "look up entity", err)
	}
	ancestor, err := r.ancestorRow(ctx, row)
	if err != nil {
		return EntityInfo{}, err
	}
	return r.info(ctx, ancestor), nil
}

// Describe returns the merged view of a single entity row.
func (r *Resolver) Describe(ctx context.Context, entityID int64) (EntityInfo, error) {
	row, err := r.proj.EntityByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return EntityInfo{}, fault.Newf(fault.NotFound, "entity %d not found", entityID)
		}
		return EntityInfo{}, fault.Wrap(fault.DatabaseError, "look up entity", err)
	}
	return r.info(ctx, row), nil
}

// Lineage returns the chain from the entity up to and including the root.
func (r *Resolver) Lineage(ctx context.Context, entityID int64) ([]EntityInfo, error) {
	row, err := r.proj.EntityByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, fault.Newf(fault.NotFound, "entity %d not found", entityID)
		}
		return nil, fault.Wrap(fault.DatabaseError, "look up entity", err)
	}

	chain := []EntityInfo{r.info(ctx, row)}
	seen := map[int64]bool{row.ID: true}
	for !row.IsRoot {
		next, err := r.ancestorRow(ctx, row)
		if err != nil {
			return nil, err
		}
		if seen[next.ID] {
			return nil, fault.Newf(fault.DatabaseError, "ancestor cycle at entity %d", next.ID)
		}
		seen[next.ID] = true
		chain = append(chain, r.info(ctx, next))
		row = next
	}
	return chain, nil
}

func (r *Resolver) ancestorRow(ctx context.Context, row projection.EntityRow) (projection.EntityRow, error) {
	if row.IsRoot {
		return row, nil
	}

	if row.HasAncestorLink() {
		anc, err := r.proj.EntityByID(ctx, row.AncestorID)
		if err == nil {
			return anc, nil
		}
		if !errors.Is(err, projection.ErrNotFound) {
			return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "look up ancestor", err)
		}
		// Foreign keys make this unreachable; fall through to the ledger.
	}

	e, err := r.ledger.Entity(row.Address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return projection.EntityRow{}, fault.Newf(fault.AncestorNotFound, "entity %d is not in the ledger", row.ID)
		}
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "read ledger entity", err)
	}
	anc, err := r.proj.EntityByAddress(ctx, e.AncestorRef())
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return projection.EntityRow{}, fault.Newf(fault.AncestorNotFound, "ancestor %s of entity %d has no row", e.AncestorRef(), row.ID)
		}
		return projection.EntityRow{}, fault.Wrap(fault.DatabaseError, "look up ancestor", err)
	}

	if anc.ID != row.ID {
		if err := r.proj.SetAncestor(ctx, row.ID, anc.ID); err != nil {
			r.logger.Warn("ancestor link repair failed", "entity_id", row.ID, "ancestor_id", anc.ID, "error", err)
		} else {
			r.logger.Info("ancestor link repaired", "entity_id", row.ID, "ancestor_id", anc.ID)
		}
	}
	return anc, nil
}

// info decorates a row with whatever the ledger and credentials can add.
// Lookup failures here only leave fields empty.
func (r *Resolver) info(ctx context.Context, row projection.EntityRow) EntityInfo {
	info := EntityInfo{
		ID:         row.ID,
		Address:    row.Address,
		IsRoot:     row.IsRoot,
		AncestorID: row.AncestorID,
		CreatedAt:  row.CreatedAt,
	}
	if c, err := row.Address.CID(); err == nil {
		info.CID = c.String()
	}
	if cred, err := r.proj.CredentialByEntity(ctx, row.ID); err == nil {
		info.Username = cred.Username
	}

	e, err := r.ledger.Entity(row.Address)
	if err != nil {
		r.logger.Debug("ledger entity unavailable for display", "address", row.Address, "error", err)
		return info
	}
	info.Ancestor = e.AncestorRef()
	info.Secret = e.Secret
	if m, err := r.ledger.Moment(e.Moment); err == nil {
		info.RegisteredAt = m.At
	}
	return info
}
