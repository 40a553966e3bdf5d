package lineage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
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
	"github.com/roach88/pathchain/internal/registration"
	"github.com/roach88/pathchain/internal/testutil"
)

type fixture struct {
	ledger   *ledger.Ledger
	proj     *projection.Store
	coord    *registration.Coordinator
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(objectstore.New(objectstore.NewMemory()),
		ledger.WithClock(testutil.NewStepClock()),
		ledger.WithNonce(testutil.NewSequenceNonce().Next),
	)
	p, err := projection.Open(filepath.Join(t.TempDir(), "projection.db"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	signer, err := credential.NewSigner(bytes.Repeat([]byte{2}, 32), time.Hour)
	require.NoError(t, err)
	hasher := credential.NewArgon2id(credential.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 8, KeyLen: 16})

	return &fixture{
		ledger:   l,
		proj:     p,
		coord:    registration.New(l, p, hasher, signer),
		resolver: New(l, p),
	}
}

// chain registers root <- alice <- bob and returns their row ids.
func (f *fixture) chain(t *testing.T) (root, alice, bob int64) {
	t.Helper()
	ctx := context.Background()
	boot, err := f.coord.Bootstrap(ctx)
	require.NoError(t, err)

	a, err := f.coord.Register(ctx, string(boot.Secrets[0].Address), "alice", "pw")
	require.NoError(t, err)
	invite, err := f.coord.IssueSecret(ctx, a.Entity.ID)
	require.NoError(t, err)
	b, err := f.coord.Register(ctx, string(invite.Address), "bob", "pw")
	require.NoError(t, err)
	return boot.Root.ID, a.Entity.ID, b.Entity.ID
}

func TestResolveAncestor_FastPath(t *testing.T) {
	f := newFixture(t)
	rootID, aliceID, bobID := f.chain(t)
	ctx := context.Background()

	anc, err := f.resolver.ResolveAncestor(ctx, bobID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, anc.ID)
	assert.Equal(t, "alice", anc.Username)
	assert.Equal(t, rootID, anc.AncestorID)
	assert.True(t, strings.HasPrefix(anc.CID, "b"), "base32 CIDv1, got %q", anc.CID)
	assert.False(t, anc.RegisteredAt.IsZero())
	assert.NotEmpty(t, anc.Secret)

	root, err := f.resolver.ResolveAncestor(ctx, rootID)
	require.NoError(t, err)
	assert.Equal(t, rootID, root.ID)
	assert.True(t, root.IsRoot)
	assert.Equal(t, root.Address, root.Ancestor)
}

func TestResolveAncestor_FallbackRepairsLink(t *testing.T) {
	f := newFixture(t)
	_, aliceID, _ := f.chain(t)
	ctx := context.Background()

	// A ledger entity sponsored by alice whose row has no ancestor link.
	aliceRow, err := f.proj.EntityByID(ctx, aliceID)
	require.NoError(t, err)
	secret, err := f.ledger.IssueSecret(aliceRow.Address)
	require.NoError(t, err)
	carol, err := f.ledger.MintEntity(secret)
	require.NoError(t, err)
	row, err := f.proj.InsertEntity(ctx, carol, 0)
	require.NoError(t, err)
	require.False(t, row.HasAncestorLink())

	anc, err := f.resolver.ResolveAncestor(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, anc.ID)

	repaired, err := f.proj.EntityByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, repaired.AncestorID)
}

func TestResolveAncestor_NotFound(t *testing.T) {
	f := newFixture(t)
	f.chain(t)

	_, err := f.resolver.ResolveAncestor(context.Background(), 404)
	requireCode(t, err, fault.NotFound)
}

func TestResolveAncestor_NotInLedger(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()

	row, err := f.proj.InsertEntity(ctx, record.NewAddress(record.KindEntity, strings.Repeat("e", 64)), 0)
	require.NoError(t, err)

	_, err = f.resolver.ResolveAncestor(ctx, row.ID)
	requireCode(t, err, fault.AncestorNotFound)

	// Nothing was written.
	after, err := f.proj.EntityByID(ctx, row.ID)
	require.NoError(t, err)
	assert.False(t, after.HasAncestorLink())
}

func TestResolveAncestor_AncestorHasNoRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.chain(t)

	// A sponsor that exists only in the ledger.
	ghostSponsor, err := f.ledger.MintEntity(mustIssueFromLedgerOnly(t, f))
	require.NoError(t, err)
	secret, err := f.ledger.IssueSecret(ghostSponsor)
	require.NoError(t, err)
	child, err := f.ledger.MintEntity(secret)
	require.NoError(t, err)

	row, err := f.proj.InsertEntity(ctx, child, 0)
	require.NoError(t, err)
	_, err = f.resolver.ResolveAncestor(ctx, row.ID)
	requireCode(t, err, fault.AncestorNotFound)
}

// mustIssueFromLedgerOnly issues a root secret in the ledger without
// mirroring it, so its consumer never gets a projection row.
func mustIssueFromLedgerOnly(t *testing.T, f *fixture) record.Address {
	t.Helper()
	root, err := f.ledger.Root()
	require.NoError(t, err)
	s, err := f.ledger.IssueSecret(root)
	require.NoError(t, err)
	return s
}

func TestLineage(t *testing.T) {
	f := newFixture(t)
	rootID, aliceID, bobID := f.chain(t)

	chain, err := f.resolver.Lineage(context.Background(), bobID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []int64{bobID, aliceID, rootID}, []int64{chain[0].ID, chain[1].ID, chain[2].ID})
	assert.Equal(t, "bob", chain[0].Username)
	assert.True(t, chain[2].IsRoot)

	rootOnly, err := f.resolver.Lineage(context.Background(), rootID)
	require.NoError(t, err)
	assert.Len(t, rootOnly, 1)

	_, err = f.resolver.Lineage(context.Background(), 999)
	requireCode(t, err, fault.NotFound)
}

// Every registered entity's ancestor resolves to an entity the ledger has.
func TestResolveAncestor_AlwaysInLedger(t *testing.T) {
	f := newFixture(t)
	rootID, aliceID, bobID := f.chain(t)
	ctx := context.Background()

	for _, id := range []int64{rootID, aliceID, bobID} {
		anc, err := f.resolver.ResolveAncestor(ctx, id)
		require.NoError(t, err)
		_, err = f.ledger.Entity(anc.Address)
		assert.NoError(t, err)
	}
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	_, aliceID, _ := f.chain(t)

	info, err := f.resolver.Describe(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.False(t, info.IsRoot)
}

func requireCode(t *testing.T, err error, code fault.Code) {
	t.Helper()
	require.Error(t, err)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe), "want *fault.Error, got %T: %v", err, err)
	assert.Equal(t, code, fe.Code, "error: %v", err)
}
