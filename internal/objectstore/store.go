package objectstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/roach88/pathchain/internal/record"
)

const (
	// DefaultCacheTTL bounds how long decoded immutable records stay cached.
	DefaultCacheTTL = 10 * time.Minute

	refsDir = "refs"
)

// Store is a content-addressed record store over a Backend.
//
// Thread-safety: safe for concurrent use as long as the Backend is. Store
// adds no locking of its own; read-modify-write sequences (secret
// consumption) must be serialized by the caller.
type Store struct {
	backend Backend
	// moments and entities never change once written, so they may be cached.
	// Secrets carry mutable state and always go to the backend.
	cache  *cache.Cache
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCacheTTL sets the lifetime of cached immutable records. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New wraps a backend.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		cache:   cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the named backend at path and wraps it.
func Open(backend, path string, opts ...Option) (*Store, error) {
	b, err := OpenBackend(backend, path)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Put writes r and returns its address. authorDigest, when non-empty, adds
// the author-scoped copy. Putting an identity that is already stored is a
// no-op (state fields of the existing record are left alone).
func (s *Store) Put(r record.Record, authorDigest string) (record.Address, error) {
	addr, err := record.AddressOf(r)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", r.Kind(), err)
	}
	data, err := record.Encode(r, addr)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", r.Kind(), err)
	}

	if err := s.create(string(addr), r, data); err != nil {
		return "", err
	}
	if authorDigest != "" {
		if err := s.create(addr.Scoped(authorDigest), r, data); err != nil {
			return "", err
		}
	}
	return addr, nil
}

func (s *Store) create(key string, r record.Record, data []byte) error {
	err := s.backend.Create(key, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrExists) {
		return fmt.Errorf("put %s: %w", key, err)
	}

	existing, err := s.backend.Read(key)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	stored, err := record.Decode(r.Kind(), existing)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, ErrImmutable)
	}
	same, err := sameIdentity(stored, r)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if !same {
		return fmt.Errorf("put %s: %w", key, ErrImmutable)
	}
	return nil
}

func sameIdentity(a, b record.Record) (bool, error) {
	ca, err := record.MarshalCanonical(a.Identity())
	if err != nil {
		return false, err
	}
	cb, err := record.MarshalCanonical(b.Identity())
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// Get reads the record at a fully-qualified address, inferring the kind
// from its prefix. An author-scoped address is read from the scoped key.
func (s *Store) Get(address string) (record.Record, error) {
	addr, author, err := record.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if author != "" {
		return s.GetScoped(author, addr)
	}
	return s.read(string(addr), addr)
}

// GetKind reads a record from a bare digest, with the kind supplied by the caller.
func (s *Store) GetKind(kind record.Kind, digest string) (record.Record, error) {
	if !kind.Valid() || !record.IsDigest(digest) {
		return nil, fmt.Errorf("%w: %s/%s", record.ErrInvalidAddress, kind, digest)
	}
	addr := record.NewAddress(kind, digest)
	return s.read(string(addr), addr)
}

// GetScoped reads the author-scoped copy of a record.
func (s *Store) GetScoped(authorDigest string, addr record.Address) (record.Record, error) {
	if !record.IsDigest(authorDigest) {
		return nil, fmt.Errorf("%w: author %q", record.ErrInvalidAddress, authorDigest)
	}
	return s.read(addr.Scoped(authorDigest), addr)
}

func (s *Store) read(key string, addr record.Address) (record.Record, error) {
	cacheable := s.cache != nil && addr.Kind() != record.KindSecret
	if cacheable {
		if r, ok := s.cache.Get(key); ok {
			return r.(record.Record), nil
		}
	}

	data, err := s.backend.Read(key)
	if err != nil {
		return nil, err
	}
	r, err := record.Decode(addr.Kind(), data)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}
	if err := verify(r, addr); err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}

	if cacheable {
		s.cache.SetDefault(key, r)
	}
	return r, nil
}

// verify recomputes the digest and checks the redundant self field.
func verify(r record.Record, addr record.Address) error {
	got, err := record.AddressOf(r)
	if err != nil {
		return err
	}
	if got != addr {
		return fmt.Errorf("%w: content hashes to %s", ErrDigestMismatch, got)
	}
	if self := selfOf(r); self != addr {
		return fmt.Errorf("%w: self field is %q", ErrDigestMismatch, self)
	}
	return nil
}

func selfOf(r record.Record) record.Address {
	switch v := r.(type) {
	case record.Moment:
		return v.Self
	case record.Entity:
		return v.Self
	case record.Secret:
		return v.Self
	}
	return ""
}

// Update rewrites the state fields of an existing record in place, at its
// address and (if authorDigest is set) its author-scoped copy. The identity
// must be unchanged, so the address stays valid.
func (s *Store) Update(addr record.Address, r record.Record, authorDigest string) error {
	got, err := record.AddressOf(r)
	if err != nil {
		return fmt.Errorf("update %s: %w", addr, err)
	}
	if got != addr {
		return fmt.Errorf("update %s: %w", addr, ErrImmutable)
	}
	data, err := record.Encode(r, addr)
	if err != nil {
		return fmt.Errorf("update %s: %w", addr, err)
	}

	if _, err := s.backend.Read(string(addr)); err != nil {
		return fmt.Errorf("update %s: %w", addr, err)
	}
	if err := s.backend.Replace(string(addr), data); err != nil {
		return fmt.Errorf("update %s: %w", addr, err)
	}
	if authorDigest != "" {
		if err := s.backend.Replace(addr.Scoped(authorDigest), data); err != nil {
			return fmt.Errorf("update %s (scoped): %w", addr, err)
		}
	}
	if s.cache != nil {
		s.cache.Delete(string(addr))
		if authorDigest != "" {
			s.cache.Delete(addr.Scoped(authorDigest))
		}
	}
	return nil
}

// List returns the unscoped addresses of every record of a kind.
func (s *Store) List(kind record.Kind) ([]record.Address, error) {
	keys, err := s.backend.List(kind.Collection())
	if err != nil {
		return nil, err
	}
	addrs := make([]record.Address, 0, len(keys))
	for _, k := range keys {
		a := record.Address(k)
		if !a.Valid() {
			s.logger.Warn("skipping foreign key in object store", "key", k)
			continue
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// SetRef points a named ref at an address. Refs are mutable pointers kept
// beside the immutable records (e.g. the pioneer entity).
func (s *Store) SetRef(name string, addr record.Address) error {
	if !addr.Valid() {
		return fmt.Errorf("set ref %s: %w", name, record.ErrInvalidAddress)
	}
	if err := s.backend.Replace(refsDir+"/"+name, []byte(addr)); err != nil {
		return fmt.Errorf("set ref %s: %w", name, err)
	}
	return nil
}

// Ref resolves a named ref. Returns ErrNotFound if it was never set.
func (s *Store) Ref(name string) (record.Address, error) {
	b, err := s.backend.Read(refsDir + "/" + name)
	if err != nil {
		return "", err
	}
	addr := record.Address(strings.TrimSpace(string(b)))
	if !addr.Valid() {
		return "", &DecodeError{Key: refsDir + "/" + name, Err: record.ErrInvalidAddress}
	}
	return addr, nil
}
