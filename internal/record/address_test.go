package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressParts(t *testing.T) {
	digest := strings.Repeat("f", 64)
	a := NewAddress(KindEntity, digest)

	assert.Equal(t, Address("entitys/"+digest), a)
	assert.Equal(t, KindEntity, a.Kind())
	assert.Equal(t, digest, a.Digest())
	assert.True(t, a.Valid())
	assert.Equal(t, strings.Repeat("0", 64)+"/entitys/"+digest, a.Scoped(strings.Repeat("0", 64)))
}

func TestParseAddress(t *testing.T) {
	digest := strings.Repeat("a", 64)
	author := strings.Repeat("b", 64)

	addr, scope, err := ParseAddress("secrets/" + digest)
	require.NoError(t, err)
	assert.Equal(t, NewAddress(KindSecret, digest), addr)
	assert.Empty(t, scope)

	addr, scope, err = ParseAddress(author + "/secrets/" + digest)
	require.NoError(t, err)
	assert.Equal(t, NewAddress(KindSecret, digest), addr)
	assert.Equal(t, author, scope)

	for _, bad := range []string{"", digest, "widgets/" + digest, "secrets/xyz", "nope/secrets/" + digest, "a/b/c/d"} {
		_, _, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestNormalizeSecret(t *testing.T) {
	digest := strings.Repeat("c", 64)
	want := NewAddress(KindSecret, digest)

	for _, in := range []string{digest, strings.ToUpper(digest), " secrets/" + digest + " ", strings.Repeat("d", 64) + "/secrets/" + digest} {
		got, err := NormalizeSecret(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeSecret("entitys/" + digest)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NormalizeSecret("nonexistent-hash")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressCID(t *testing.T) {
	a := NewAddress(KindMoment, strings.Repeat("0", 64))
	c, err := a.CID()
	require.NoError(t, err)
	assert.True(t, c.Defined())
	assert.Equal(t, uint64(0x55), c.Prefix().Codec)

	_, err = Address("moments/zz").CID()
	assert.Error(t, err)
}
