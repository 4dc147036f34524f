package cas

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// nonceAlphabet is the character set of the random challenge nonce
const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// nonceLength is the number of random characters appended to the app name
const nonceLength = 12

// SignatureGenerator produces HMAC-signed nonces used to
// authenticate proxy-to-provider calls without a shared session. The digest
// is verifiable only by a party holding the same secret.
type SignatureGenerator struct {
	appName string
	secret  []byte
}

// NewSignatureGenerator creates a generator for the given application name
// and shared secret
func NewSignatureGenerator(appName, secret string) *SignatureGenerator {
	return &SignatureGenerator{
		appName: appName,
		secret:  []byte(secret),
	}
}

// GenerateChallenge signs the application name concatenated with a fresh
// random nonce. The nonce must come from a cryptographically secure source:
// the message is the anti-forgery token for the proxy trust boundary.
func (g *SignatureGenerator) GenerateChallenge() (*SignedChallenge, error) {
	nonce, err := randomString(nonceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge nonce: %w", err)
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(g.appName + nonce))

	return &SignedChallenge{
		Digest:    hex.EncodeToString(mac.Sum(nil)),
		IssuedFor: g.appName,
	}, nil
}

// randomString draws length characters from nonceAlphabet using crypto/rand
func randomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}
