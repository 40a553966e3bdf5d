package ledger

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathchain/internal/objectstore"
	"github.com/roach88/pathchain/internal/record"
	"github.com/roach88/pathchain/internal/testutil"
)

func newTestLedger(t *testing.T) (*Ledger, *objectstore.Store) {
	t.Helper()
	store := objectstore.New(objectstore.NewMemory())
	l := New(store,
		WithClock(testutil.NewStepClock()),
		WithNonce(testutil.NewSequenceNonce().Next),
	)
	return l, store
}

func TestBootstrapRoot_CreatesPioneerAndSecret(t *testing.T) {
	l, _ := newTestLedger(t)

	b, err := l.BootstrapRoot()
	require.NoError(t, err)
	assert.True(t, b.Created)

	root, err := l.Entity(b.Root)
	require.NoError(t, err)
	assert.True(t, root.IsPioneer())
	assert.Equal(t, b.Root, root.AncestorRef())

	secret, err := l.Secret(b.Secret)
	require.NoError(t, err)
	assert.Equal(t, b.Root, secret.Author)
	assert.False(t, secret.Consumed)

	got, err := l.Root()
	require.NoError(t, err)
	assert.Equal(t, b.Root, got)
}

func TestBootstrapRoot_Idempotent(t *testing.T) {
	l, store := newTestLedger(t)

	first, err := l.BootstrapRoot()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := l.BootstrapRoot()
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, first.Root, again.Root)
		assert.Equal(t, first.Secret, again.Secret)
	}

	entities, err := store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestBootstrapRoot_Concurrent(t *testing.T) {
	l, store := newTestLedger(t)

	const n = 16
	results := make([]Bootstrap, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.BootstrapRoot()
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Root, results[i].Root)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	entities, err := store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestBootstrapRoot_RecoversMissingRefs(t *testing.T) {
	store := objectstore.New(objectstore.NewMemory())
	clock := testutil.NewStepClock()
	first := New(store, WithClock(clock))
	b, err := first.BootstrapRoot()
	require.NoError(t, err)

	// Same records, refs lost.
	bare := objectstore.NewMemory()
	for _, kind := range record.Kinds {
		addrs, err := store.List(kind)
		require.NoError(t, err)
		for _, a := range addrs {
			r, err := store.Get(string(a))
			require.NoError(t, err)
			data, err := record.Encode(r, a)
			require.NoError(t, err)
			require.NoError(t, bare.Create(string(a), data))
		}
	}

	second := New(objectstore.New(bare), WithClock(clock))
	again, err := second.BootstrapRoot()
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, b.Root, again.Root)
	assert.Equal(t, b.Secret, again.Secret)
}

func TestRoot_BeforeBootstrap(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Root()
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestMintEntity_ConsumesSecret(t *testing.T) {
	l, _ := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	child, err := l.MintEntity(b.Secret)
	require.NoError(t, err)
	assert.True(t, record.IsDigest(child.Digest()))

	e, err := l.Entity(child)
	require.NoError(t, err)
	assert.False(t, e.IsPioneer())
	assert.Equal(t, b.Root, e.Ancestor.Ref())
	assert.Equal(t, b.Secret, e.Secret)

	scoped, err := l.EntityScoped(b.Root, child)
	require.NoError(t, err)
	assert.Equal(t, e, scoped)

	used, err := l.IsSecretUsed(b.Secret)
	require.NoError(t, err)
	assert.True(t, used)

	s, err := l.Secret(b.Secret)
	require.NoError(t, err)
	assert.Equal(t, child, s.Consumer)
}

func TestMintEntity_SingleUse(t *testing.T) {
	l, store := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	_, err = l.MintEntity(b.Secret)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.MintEntity(b.Secret)
		assert.ErrorIs(t, err, ErrSecretAlreadyUsed)
	}

	entities, err := store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 2, "root plus exactly one child")
}

// replaceFails makes every Replace fail while fail is set.
type replaceFails struct {
	objectstore.Backend
	fail bool
}

func (b *replaceFails) Replace(key string, data []byte) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.Backend.Replace(key, data)
}

func TestMintEntity_SecretUpdateFails(t *testing.T) {
	backend := &replaceFails{Backend: objectstore.NewMemory()}
	store := objectstore.New(backend)
	l := New(store,
		WithClock(testutil.NewStepClock()),
		WithNonce(testutil.NewSequenceNonce().Next),
	)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	backend.fail = true
	_, err = l.MintEntity(b.Secret)
	require.Error(t, err)

	used, err := l.IsSecretUsed(b.Secret)
	require.NoError(t, err)
	assert.False(t, used)

	// The unreferenced entity record stays behind.
	entities, err := store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	backend.fail = false
	child, err := l.MintEntity(b.Secret)
	require.NoError(t, err)
	s, err := l.Secret(b.Secret)
	require.NoError(t, err)
	assert.Equal(t, child, s.Consumer)

	entities, err = store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 3)
}

func TestMintEntity_ConcurrentSameSecret(t *testing.T) {
	l, store := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var minted []record.Address
	used := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			addr, err := l.MintEntity(b.Secret)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				minted = append(minted, addr)
			case errors.Is(err, ErrSecretAlreadyUsed):
				used++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, minted, 1)
	assert.Equal(t, n-1, used)

	s, err := l.Secret(b.Secret)
	require.NoError(t, err)
	assert.Equal(t, minted[0], s.Consumer)

	entities, err := store.List(record.KindEntity)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestMintEntity_UnknownSecret(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.MintEntity(record.NewAddress(record.KindSecret, strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsSecretUsed_NotFoundIsNotUnused(t *testing.T) {
	l, _ := newTestLedger(t)
	used, err := l.IsSecretUsed(record.NewAddress(record.KindSecret, strings.Repeat("9", 64)))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, used)

	_, err = l.IsSecretUsed(record.NewAddress(record.KindEntity, strings.Repeat("9", 64)))
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestIssueSecret(t *testing.T) {
	l, _ := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	s1, err := l.IssueSecret(b.Root)
	require.NoError(t, err)
	s2, err := l.IssueSecret(b.Root)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, b.Secret, s1)

	sec, err := l.Secret(s1)
	require.NoError(t, err)
	assert.Equal(t, b.Root, sec.Author)
	assert.False(t, sec.Consumed)
	assert.Empty(t, sec.Consumer)

	all, err := l.Secrets()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIssueSecret_UnknownAuthor(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.IssueSecret(record.NewAddress(record.KindEntity, strings.Repeat("1", 64)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMintEntity_ChainOfThree(t *testing.T) {
	l, _ := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	alice, err := l.MintEntity(b.Secret)
	require.NoError(t, err)
	invite, err := l.IssueSecret(alice)
	require.NoError(t, err)
	bob, err := l.MintEntity(invite)
	require.NoError(t, err)

	e, err := l.Entity(bob)
	require.NoError(t, err)
	assert.Equal(t, alice, e.AncestorRef())
}

func TestMarkSecretUsed(t *testing.T) {
	l, _ := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)

	// Unused secret flips to used.
	s, err := l.MarkSecretUsed(b.Secret, b.Root)
	require.NoError(t, err)
	assert.True(t, s.Consumed)
	assert.Equal(t, b.Root, s.Consumer)

	// Second call is a no-op that returns the stored record.
	again, err := l.MarkSecretUsed(b.Secret, b.Root)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	// A used secret cannot mint.
	_, err = l.MintEntity(b.Secret)
	assert.ErrorIs(t, err, ErrSecretAlreadyUsed)
}

func TestMarkSecretUsed_AfterMint(t *testing.T) {
	l, _ := newTestLedger(t)
	b, err := l.BootstrapRoot()
	require.NoError(t, err)
	child, err := l.MintEntity(b.Secret)
	require.NoError(t, err)

	s, err := l.MarkSecretUsed(b.Secret, child)
	require.NoError(t, err)
	assert.Equal(t, child, s.Consumer)
}

func TestKeyLock_ReleasesEntries(t *testing.T) {
	k := newKeyLock()
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
