package objectstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathchain/internal/record"
)

// backends returns one fresh store per backend implementation.
func backends(t *testing.T) map[string]*Store {
	t.Helper()
	out := map[string]*Store{}
	for _, name := range []string{BackendLocalFS, BackendLevelDB, BackendMemory} {
		s, err := Open(name, filepath.Join(t.TempDir(), name))
		require.NoError(t, err, name)
		t.Cleanup(func() { s.Close() })
		out[name] = s
	}
	return out
}

func testMoment(nanos int64) record.Moment {
	return record.Moment{At: time.Unix(0, nanos).UTC()}
}

func testSecret(t *testing.T, s *Store) (record.Secret, record.Address, record.Address) {
	t.Helper()
	author := record.NewAddress(record.KindEntity, strings.Repeat("a", 64))
	mAddr, err := s.Put(testMoment(1), "")
	require.NoError(t, err)
	sec := record.Secret{Moment: mAddr, Author: author, Nonce: "n-1"}
	addr, err := s.Put(sec, author.Digest())
	require.NoError(t, err)
	sec.Self = addr
	return sec, addr, author
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := record.Moment{At: time.Unix(0, 42).UTC(), Place: &record.Coordinate{Lat: "52.5", Lon: "13.4"}}
			addr, err := s.Put(m, "")
			require.NoError(t, err)
			assert.Equal(t, record.KindMoment, addr.Kind())

			got, err := s.Get(string(addr))
			require.NoError(t, err)
			gm := got.(record.Moment)
			assert.Equal(t, addr, gm.Self)
			assert.True(t, gm.At.Equal(m.At))
			require.NotNil(t, gm.Place)
			assert.Equal(t, "13.4", gm.Place.Lon)

			byDigest, err := s.GetKind(record.KindMoment, addr.Digest())
			require.NoError(t, err)
			assert.Equal(t, gm, byDigest)
		})
	}
}

func TestStore_PutIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.Put(testMoment(7), "")
			require.NoError(t, err)
			second, err := s.Put(testMoment(7), "")
			require.NoError(t, err)
			assert.Equal(t, first, second)

			addrs, err := s.List(record.KindMoment)
			require.NoError(t, err)
			assert.Equal(t, []record.Address{first}, addrs)
		})
	}
}

func TestStore_RePutKeepsSecretState(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sec, addr, author := testSecret(t, s)
			consumer := record.NewAddress(record.KindEntity, strings.Repeat("b", 64))
			used, err := sec.Consume(consumer)
			require.NoError(t, err)
			require.NoError(t, s.Update(addr, used, author.Digest()))

			// Writing the unconsumed form again must not roll the state back.
			again, err := s.Put(sec, author.Digest())
			require.NoError(t, err)
			assert.Equal(t, addr, again)

			got, err := s.Get(string(addr))
			require.NoError(t, err)
			assert.True(t, got.(record.Secret).Consumed)
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(string(record.NewAddress(record.KindEntity, strings.Repeat("c", 64))))
			assert.True(t, IsNotFound(err), "got %v", err)

			_, err = s.Get("entitys/not-a-digest")
			assert.ErrorIs(t, err, record.ErrInvalidAddress)
		})
	}
}

func TestStore_ScopedCopy(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, addr, author := testSecret(t, s)

			got, err := s.GetScoped(author.Digest(), addr)
			require.NoError(t, err)
			assert.Equal(t, addr, got.(record.Secret).Self)

			viaString, err := s.Get(addr.Scoped(author.Digest()))
			require.NoError(t, err)
			assert.Equal(t, got, viaString)
		})
	}
}

func TestStore_UpdateRewritesBothCopies(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sec, addr, author := testSecret(t, s)
			consumer := record.NewAddress(record.KindEntity, strings.Repeat("d", 64))
			used, err := sec.Consume(consumer)
			require.NoError(t, err)
			require.NoError(t, s.Update(addr, used, author.Digest()))

			plain, err := s.Get(string(addr))
			require.NoError(t, err)
			scoped, err := s.GetScoped(author.Digest(), addr)
			require.NoError(t, err)
			for _, r := range []record.Record{plain, scoped} {
				got := r.(record.Secret)
				assert.True(t, got.Consumed)
				assert.Equal(t, consumer, got.Consumer)
			}
		})
	}
}

func TestStore_UpdateRejectsIdentityChange(t *testing.T) {
	s := New(NewMemory())
	sec, addr, author := testSecret(t, s)
	sec.Nonce = "other"
	err := s.Update(addr, sec, author.Digest())
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestStore_UpdateMissingRecord(t *testing.T) {
	s := New(NewMemory())
	sec := record.Secret{
		Moment: record.NewAddress(record.KindMoment, strings.Repeat("1", 64)),
		Author: record.NewAddress(record.KindEntity, strings.Repeat("2", 64)),
		Nonce:  "x",
	}
	addr, err := record.AddressOf(sec)
	require.NoError(t, err)
	err = s.Update(addr, sec, "")
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestStore_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(BackendLocalFS, dir, WithCacheTTL(0))
	require.NoError(t, err)
	defer s.Close()

	addr, err := s.Put(testMoment(100), "")
	require.NoError(t, err)

	path := filepath.Join(dir, filepath.FromSlash(string(addr)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"at":100`, `"at":101`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = s.Get(string(addr))
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestStore_DetectsGarbage(t *testing.T) {
	b := NewMemory()
	s := New(b)
	addr := record.NewAddress(record.KindEntity, strings.Repeat("e", 64))
	require.NoError(t, b.Create(string(addr), []byte("not json")))

	_, err := s.Get(string(addr))
	assert.True(t, IsCorrupt(err))
}

func TestStore_PutConflictingIdentity(t *testing.T) {
	b := NewMemory()
	s := New(b)
	m := testMoment(5)
	addr, err := record.AddressOf(m)
	require.NoError(t, err)

	// Occupy the key with a record whose identity differs.
	other, err := record.Encode(testMoment(6), addr)
	require.NoError(t, err)
	require.NoError(t, b.Create(string(addr), other))

	_, err = s.Put(m, "")
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestStore_Refs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Ref("pioneer")
			assert.True(t, IsNotFound(err))

			a := record.NewAddress(record.KindEntity, strings.Repeat("f", 64))
			require.NoError(t, s.SetRef("pioneer", a))
			got, err := s.Ref("pioneer")
			require.NoError(t, err)
			assert.Equal(t, a, got)

			assert.ErrorIs(t, s.SetRef("pioneer", "bogus"), record.ErrInvalidAddress)
		})
	}
}

func TestStore_ListSkipsScopedCopies(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, addr, _ := testSecret(t, s)
			secrets, err := s.List(record.KindSecret)
			require.NoError(t, err)
			assert.Equal(t, []record.Address{addr}, secrets)

			entities, err := s.List(record.KindEntity)
			require.NoError(t, err)
			assert.Empty(t, entities)
		})
	}
}

func TestLocalFS_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(BackendLocalFS, dir)
	require.NoError(t, err)
	addr, err := s1.Put(testMoment(9), "")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(BackendLocalFS, dir)
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.Get(string(addr))
	require.NoError(t, err)
}

func TestBackend_CreateExclusive(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := s.backend
			require.NoError(t, b.Create("refs/x", []byte("1")))
			assert.ErrorIs(t, b.Create("refs/x", []byte("2")), ErrExists)
			got, err := b.Read("refs/x")
			require.NoError(t, err)
			assert.Equal(t, "1", string(got))

			require.NoError(t, b.Replace("refs/x", []byte("3")))
			got, err = b.Read("refs/x")
			require.NoError(t, err)
			assert.Equal(t, "3", string(got))
		})
	}
}

func TestLocalFS_ConcurrentCreate(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalFS(dir)
	require.NoError(t, err)

	payload := []byte(strings.Repeat("x", 1<<16))
	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Create("moments/a", payload)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrExists)
	}
	assert.Equal(t, 1, created)

	got, err := b.Read("moments/a")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// No temp files are left next to the key.
	entries, err := os.ReadDir(filepath.Join(dir, "moments"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name())
}

func TestBackend_RejectsBadKeys(t *testing.T) {
	b := NewMemory()
	for _, key := range []string{"", "../etc", "a//b", "Upper/x", "/lead"} {
		assert.ErrorIs(t, b.Create(key, nil), ErrInvalidKey, key)
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	_, err := OpenBackend("s3", "")
	assert.Error(t, err)
}
