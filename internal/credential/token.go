package credential

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// tokenIssuer is the iss claim of every capability token.
const tokenIssuer = "pathchain"

// Claims is the payload of a capability token.
type Claims struct {
	ID        string `json:"jti"`
	EntityID  int64  `json:"eid"`
	Username  string `json:"sub"`
	Address   string `json:"addr"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// entityClaims are the private claims carried next to the registered ones.
type entityClaims struct {
	EntityID int64  `json:"eid"`
	Address  string `json:"addr"`
}

// Issuer issues capability tokens bound to a registered entity.
type Issuer interface {
	Issue(entityID int64, username, address string) (string, error)
}

// Verifier checks tokens produced by an Issuer.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	// ErrInvalidToken is returned for tokens that fail to parse or verify.
	ErrInvalidToken = errors.New("credential: invalid token")
	// ErrExpiredToken is returned for well-signed tokens past their expiry.
	ErrExpiredToken = errors.New("credential: token expired")
)

// Signer issues and verifies capability tokens as compact EdDSA-signed JWTs.
type Signer struct {
	key    ed25519.PrivateKey
	signer jose.Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner derives the signing key from a 32-byte seed.
func NewSigner(seed []byte, ttl time.Duration) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("credential: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if ttl <= 0 {
		return nil, errors.New("credential: token ttl must be positive")
	}
	key := ed25519.NewKeyFromSeed(seed)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("credential: token signer: %w", err)
	}
	return &Signer{
		key:    key,
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock replaces the signer's time source.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Signer) Issue(entityID int64, username, address string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("credential: token id: %w", err)
	}
	now := s.now()
	token, err := jwt.Signed(s.signer).
		Claims(jwt.Claims{
			ID:       id.String(),
			Issuer:   tokenIssuer,
			Subject:  username,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(s.ttl)),
		}).
		Claims(entityClaims{EntityID: entityID, Address: address}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("credential: sign token: %w", err)
	}
	return token, nil
}

func (s *Signer) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var (
		std    jwt.Claims
		entity entityClaims
	)
	if err := parsed.Claims(s.PublicKey(), &std, &entity); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if std.IssuedAt == nil || std.Expiry == nil {
		return Claims{}, ErrInvalidToken
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer, Time: s.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		ID:        std.ID,
		EntityID:  entity.EntityID,
		Username:  std.Subject,
		Address:   entity.Address,
		IssuedAt:  std.IssuedAt.Time().Unix(),
		ExpiresAt: std.Expiry.Time().Unix(),
	}, nil
}

// Unavailable is the hasher and token issuer for deployments that have
// none configured. Every call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Hash(string) (string, error) { return "", ErrUnavailable }

func (Unavailable) Verify(string, string) (bool, error) { return false, ErrUnavailable }

func (Unavailable) Issue(int64, string, string) (string, error) { return "", ErrUnavailable }

var (
	_ Hasher   = (*Argon2id)(nil)
	_ Hasher   = Unavailable{}
	_ Issuer   = (*Signer)(nil)
	_ Issuer   = Unavailable{}
	_ Verifier = (*Signer)(nil)
)

// Available reports whether c is a configured collaborator rather than
// Unavailable (or nil).
func Available(c any) bool {
	if c == nil {
		return false
	}
	_, unavailable := c.(Unavailable)
	return !unavailable
}
