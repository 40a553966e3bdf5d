package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/pathchain/internal/objectstore"
	"github.com/roach88/pathchain/internal/record"
)

// Named refs kept in the object store.
const (
	RefPioneer       = "pioneer"
	RefPioneerSecret = "pioneer-secret"
)

// Ledger is the identity graph. Safe for concurrent use.
type Ledger struct {
	store  *objectstore.Store
	clock  Clock
	place  *record.Coordinate
	nonce  func() string
	logger *slog.Logger

	locks  *keyLock
	bootMu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used for new moments.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithPlace stamps every new moment with a fixed coordinate.
func WithPlace(c *record.Coordinate) Option {
	return func(l *Ledger) { l.place = c }
}

// WithNonce overrides the secret nonce generator (random UUIDs by default).
func WithNonce(f func() string) Option {
	return func(l *Ledger) { l.nonce = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a ledger over store.
func New(store *objectstore.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  WallClock(),
		nonce:  uuid.NewString,
		logger: slog.Default(),
		locks:  newKeyLock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bootstrap describes the pioneer and its automatically issued secret.
type Bootstrap struct {
	Root   record.Address
	Secret record.Address
	// Created is true only for the call that minted the root.
	Created bool
}

// BootstrapRoot returns the pioneer, minting it and its first secret if the
// ledger is empty. Every call after the first returns the same root.
func (l *Ledger) BootstrapRoot() (Bootstrap, error) {
	l.bootMu.Lock()
	defer l.bootMu.Unlock()

	root, err := l.store.Ref(RefPioneer)
	switch {
	case err == nil:
		secret, err := l.store.Ref(RefPioneerSecret)
		if err != nil {
			return Bootstrap{}, fmt.Errorf("bootstrap: pioneer secret ref: %w", err)
		}
		return Bootstrap{Root: root, Secret: secret}, nil
	case !objectstore.IsNotFound(err):
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}

	// The refs are written last, so a crash mid-bootstrap can leave a pioneer
	// without them. Adopt it instead of minting a second root.
	b, err := l.recoverPioneer()
	if err != nil {
		return Bootstrap{}, err
	}
	if b.Root == "" {
		if b, err = l.mintPioneer(); err != nil {
			return Bootstrap{}, err
		}
	}

	if err := l.store.SetRef(RefPioneerSecret, b.Secret); err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	if err := l.store.SetRef(RefPioneer, b.Root); err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	if b.Created {
		l.logger.Info("pioneer bootstrapped", "root", b.Root, "secret", b.Secret)
	} else {
		l.logger.Warn("pioneer refs restored", "root", b.Root, "secret", b.Secret)
	}
	return b, nil
}

func (l *Ledger) mintPioneer() (Bootstrap, error) {
	moment, err := l.newMoment()
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	root, err := l.store.Put(record.Entity{Moment: moment, Ancestor: record.Root()}, "")
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	secret, err := l.putSecret(root)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	return Bootstrap{Root: root, Secret: secret, Created: true}, nil
}

// recoverPioneer scans for a pioneer written before its refs were. It
// returns a zero Bootstrap when there is none.
func (l *Ledger) recoverPioneer() (Bootstrap, error) {
	entities, err := l.store.List(record.KindEntity)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	var root record.Address
	for _, addr := range entities {
		e, err := l.Entity(addr)
		if err != nil {
			return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
		}
		if e.IsPioneer() {
			root = addr
			break
		}
	}
	if root == "" {
		return Bootstrap{}, nil
	}

	secrets, err := l.Secrets()
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	for _, s := range secrets {
		if s.Author == root {
			return Bootstrap{Root: root, Secret: s.Self}, nil
		}
	}
	secret, err := l.putSecret(root)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap: %w", err)
	}
	return Bootstrap{Root: root, Secret: secret}, nil
}

// Root returns the pioneer address, or ErrNoRoot.
func (l *Ledger) Root() (record.Address, error) {
	root, err := l.store.Ref(RefPioneer)
	if objectstore.IsNotFound(err) {
		return "", ErrNoRoot
	}
	return root, err
}

// IssueSecret creates an unused secret authored by an existing entity.
func (l *Ledger) IssueSecret(author record.Address) (record.Address, error) {
	if _, err := l.Entity(author); err != nil {
		return "", fmt.Errorf("issue secret: author: %w", err)
	}
	addr, err := l.putSecret(author)
	if err != nil {
		return "", fmt.Errorf("issue secret: %w", err)
	}
	l.logger.Debug("secret issued", "secret", addr, "author", author)
	return addr, nil
}

func (l *Ledger) putSecret(author record.Address) (record.Address, error) {
	moment, err := l.newMoment()
	if err != nil {
		return "", err
	}
	return l.store.Put(record.Secret{Moment: moment, Author: author, Nonce: l.nonce()}, author.Digest())
}

func (l *Ledger) newMoment() (record.Address, error) {
	return l.store.Put(record.Moment{At: l.clock.Now(), Place: l.place}, "")
}

// IsSecretUsed reports the consumed flag. An unknown address is ErrNotFound,
// never false.
func (l *Ledger) IsSecretUsed(secret record.Address) (bool, error) {
	s, err := l.Secret(secret)
	if err != nil {
		return false, err
	}
	return s.Consumed, nil
}

// MintEntity consumes secret and creates the entity it admits. The new
// entity's ancestor is the secret's author. A consumed secret yields
// ErrSecretAlreadyUsed and creates nothing.
//
// The entity and its moment are written before the secret is flipped. If
// that final update fails, both records stay in the store with nothing
// referring to them; the secret remains unused and a retry mints a fresh
// entity.
func (l *Ledger) MintEntity(secret record.Address) (record.Address, error) {
	unlock := l.locks.Lock(string(secret))
	defer unlock()

	s, err := l.Secret(secret)
	if err != nil {
		return "", fmt.Errorf("mint entity: %w", err)
	}
	if s.Consumed {
		return "", ErrSecretAlreadyUsed
	}

	moment, err := l.newMoment()
	if err != nil {
		return "", fmt.Errorf("mint entity: %w", err)
	}
	entity := record.Entity{Moment: moment, Ancestor: record.RefersTo(s.Author), Secret: secret}
	addr, err := l.store.Put(entity, s.Author.Digest())
	if err != nil {
		return "", fmt.Errorf("mint entity: %w", err)
	}

	used, err := s.Consume(addr)
	if err != nil {
		return "", fmt.Errorf("mint entity: %w", err)
	}
	if err := l.store.Update(secret, used, s.Author.Digest()); err != nil {
		// The entity record exists but nothing points at it; the secret is
		// still unused and may be retried.
		l.logger.Error("secret update failed after entity write", "secret", secret, "entity", addr, "error", err)
		return "", fmt.Errorf("mint entity: consume secret: %w", err)
	}

	l.logger.Info("entity minted", "entity", addr, "ancestor", s.Author, "secret", secret)
	return addr, nil
}

// MarkSecretUsed asserts that secret was consumed by consumer. Already
// consumed secrets are returned unchanged.
func (l *Ledger) MarkSecretUsed(secret, consumer record.Address) (record.Secret, error) {
	unlock := l.locks.Lock(string(secret))
	defer unlock()

	s, err := l.Secret(secret)
	if err != nil {
		return record.Secret{}, fmt.Errorf("mark secret used: %w", err)
	}
	if s.Consumed {
		if s.Consumer != consumer {
			l.logger.Warn("secret consumed by a different entity", "secret", secret, "consumer", s.Consumer, "claimed", consumer)
		}
		return s, nil
	}

	used, err := s.Consume(consumer)
	if err != nil {
		return record.Secret{}, fmt.Errorf("mark secret used: %w", err)
	}
	if err := l.store.Update(secret, used, s.Author.Digest()); err != nil {
		return record.Secret{}, fmt.Errorf("mark secret used: %w", err)
	}
	return used, nil
}

// Secret reads a secret record.
func (l *Ledger) Secret(addr record.Address) (record.Secret, error) {
	r, err := l.get(addr, record.KindSecret)
	if err != nil {
		return record.Secret{}, err
	}
	return r.(record.Secret), nil
}

// Entity reads an entity record.
func (l *Ledger) Entity(addr record.Address) (record.Entity, error) {
	r, err := l.get(addr, record.KindEntity)
	if err != nil {
		return record.Entity{}, err
	}
	return r.(record.Entity), nil
}

// EntityScoped reads the copy of an entity stored under its ancestor's
// scope. The pioneer has no scoped copy.
func (l *Ledger) EntityScoped(ancestor, addr record.Address) (record.Entity, error) {
	if addr.Kind() != record.KindEntity {
		return record.Entity{}, fmt.Errorf("%w: %s", ErrWrongKind, addr)
	}
	r, err := l.store.GetScoped(ancestor.Digest(), addr)
	if err != nil {
		return record.Entity{}, mapNotFound(err, addr)
	}
	return r.(record.Entity), nil
}

// Moment reads a moment record.
func (l *Ledger) Moment(addr record.Address) (record.Moment, error) {
	r, err := l.get(addr, record.KindMoment)
	if err != nil {
		return record.Moment{}, err
	}
	return r.(record.Moment), nil
}

// Secrets loads every secret in the ledger.
func (l *Ledger) Secrets() ([]record.Secret, error) {
	addrs, err := l.store.List(record.KindSecret)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	out := make([]record.Secret, 0, len(addrs))
	for _, a := range addrs {
		s, err := l.Secret(a)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (l *Ledger) get(addr record.Address, kind record.Kind) (record.Record, error) {
	if !addr.Valid() {
		return nil, fmt.Errorf("%w: %q", record.ErrInvalidAddress, addr)
	}
	if addr.Kind() != kind {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongKind, kind, addr)
	}
	r, err := l.store.Get(string(addr))
	if err != nil {
		return nil, mapNotFound(err, addr)
	}
	return r, nil
}

func mapNotFound(err error, addr record.Address) error {
	if errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return err
}
