package cas

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateChallenge(t *testing.T) {
	gen := NewSignatureGenerator("payroll", "super-secret")

	ch, err := gen.GenerateChallenge()
	require.NoError(t, err)

	assert.Equal(t, "payroll", ch.IssuedFor)
	assert.Len(t, ch.Digest, 64, "hex-encoded SHA-256 digest")

	_, err = hex.DecodeString(ch.Digest)
	assert.NoError(t, err, "digest must be valid hex")
}

func TestGenerateChallengeFreshNonce(t *testing.T) {
	gen := NewSignatureGenerator("payroll", "super-secret")

	first, err := gen.GenerateChallenge()
	require.NoError(t, err)
	second, err := gen.GenerateChallenge()
	require.NoError(t, err)

	assert.NotEqual(t, first.Digest, second.Digest,
		"every challenge must carry a fresh nonce")
}

func TestGenerateChallengeSecretMatters(t *testing.T) {
	// Identical inputs under different secrets must never collide, even
	// though the nonce already makes collisions unlikely.
	a := NewSignatureGenerator("payroll", "secret-a")
	b := NewSignatureGenerator("payroll", "secret-b")

	chA, err := a.GenerateChallenge()
	require.NoError(t, err)
	chB, err := b.GenerateChallenge()
	require.NoError(t, err)

	assert.NotEqual(t, chA.Digest, chB.Digest)
}

func TestRandomStringAlphabet(t *testing.T) {
	s, err := randomString(64)
	require.NoError(t, err)
	require.Len(t, s, 64)

	for _, c := range s {
		assert.Contains(t, nonceAlphabet, string(c))
	}
}
