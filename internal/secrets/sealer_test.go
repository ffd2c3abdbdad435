package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer("unit-test-passphrase")
	require.NoError(t, err)

	sealed, err := sealer.Seal("ya29.a0AfH6SMB-refresh-token")
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.a0AfH6SMB-refresh-token", sealed)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.a0AfH6SMB-refresh-token", opened)
}

func TestSealerNonceVaries(t *testing.T) {
	sealer, err := NewSealer("unit-test-passphrase")
	require.NoError(t, err)

	first, err := sealer.Seal("same-plaintext")
	require.NoError(t, err)
	second, err := sealer.Seal("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSealerRejectsTamperedCiphertext(t *testing.T) {
	sealer, err := NewSealer("unit-test-passphrase")
	require.NoError(t, err)

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)

	_, err = sealer.Open(sealed[:len(sealed)-4] + "AAAA")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = sealer.Open("not base64!!!")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = sealer.Open("")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestSealerRejectsOtherKey(t *testing.T) {
	a, err := NewSealer("key-a")
	require.NoError(t, err)
	b, err := NewSealer("key-b")
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestNewSealerEmptyKey(t *testing.T) {
	_, err := NewSealer("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
