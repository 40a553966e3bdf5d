package registration

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/fault"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/objectstore"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/record"
	"github.com/roach88/pathchain/internal/testutil"
)

type env struct {
	ledger *ledger.Ledger
	store  *objectstore.Store
	proj   *projection.Store
	signer *credential.Signer
	coord  *Coordinator
}

type envOption struct {
	projOpts []projection.Option
	wrap     func(*ledger.Ledger) Ledger
	hasher   credential.Hasher
	issuer   credential.Issuer
	noCreds  bool
}

func newEnv(t *testing.T, opt envOption) *env {
	t.Helper()
	store := objectstore.New(objectstore.NewMemory())
	l := ledger.New(store,
		ledger.WithClock(testutil.NewStepClock()),
		ledger.WithNonce(testutil.NewSequenceNonce().Next),
	)

	p, err := projection.Open(filepath.Join(t.TempDir(), "projection.db"), opt.projOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	signer, err := credential.NewSigner(bytes.Repeat([]byte{1}, 32), time.Hour)
	require.NoError(t, err)

	var hasher credential.Hasher = credential.NewArgon2id(credential.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 8, KeyLen: 16})
	var issuer credential.Issuer = signer
	if opt.hasher != nil {
		hasher = opt.hasher
	}
	if opt.issuer != nil {
		issuer = opt.issuer
	}
	if opt.noCreds {
		hasher, issuer = nil, nil
	}

	var led Ledger = l
	if opt.wrap != nil {
		led = opt.wrap(l)
	}
	return &env{
		ledger: l,
		store:  store,
		proj:   p,
		signer: signer,
		coord:  New(led, p, hasher, issuer),
	}
}

// bootstrap mirrors the root and returns its first secret.
func (e *env) bootstrap(t *testing.T) (projection.EntityRow, record.Address) {
	t.Helper()
	res, err := e.coord.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Secrets, 1)
	return res.Root, res.Secrets[0].Address
}

func requireCode(t *testing.T, err error, code fault.Code) {
	t.Helper()
	require.Error(t, err)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe), "want *fault.Error, got %T: %v", err, err)
	assert.Equal(t, code, fe.Code, "error: %v", err)
}

// flakyLedger overrides selected ledger calls.
type flakyLedger struct {
	*ledger.Ledger
	markErr   error
	entityErr error
	mintAddr  record.Address
}

func (f *flakyLedger) MarkSecretUsed(secret, consumer record.Address) (record.Secret, error) {
	if f.markErr != nil {
		return record.Secret{}, f.markErr
	}
	return f.Ledger.MarkSecretUsed(secret, consumer)
}

func (f *flakyLedger) Entity(addr record.Address) (record.Entity, error) {
	if f.entityErr != nil {
		return record.Entity{}, f.entityErr
	}
	return f.Ledger.Entity(addr)
}

func (f *flakyLedger) MintEntity(secret record.Address) (record.Address, error) {
	if f.mintAddr != "" {
		return f.mintAddr, nil
	}
	return f.Ledger.MintEntity(secret)
}

// countRows returns the number of entity and credential rows.
func countRows(t *testing.T, p *projection.Store) (entities, credentials int) {
	t.Helper()
	ctx := context.Background()
	root, err := p.FindRoot(ctx)
	if errors.Is(err, projection.ErrNotFound) {
		return 0, 0
	}
	require.NoError(t, err)
	// Row ids are dense from the root: the tests never delete, and a
	// rolled-back insert does not advance the sequence.
	for id := root.ID; ; id++ {
		row, err := p.EntityByID(ctx, id)
		if errors.Is(err, projection.ErrNotFound) {
			break
		}
		require.NoError(t, err)
		entities++
		if _, err := p.CredentialByEntity(ctx, row.ID); err == nil {
			credentials++
		}
	}
	return entities, credentials
}
