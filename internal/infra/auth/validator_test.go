package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, *BaseValidator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, NewBaseValidator(&key.PublicKey)
}

func signClaims(t *testing.T, key *rsa.PrivateKey, claims domain.CustomClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	t.Parallel()
	key, v := newKeyPair(t)

	token := signClaims(t, key, domain.CustomClaims{
		UserID: "jsmith",
		Scopes: map[string]bool{"close.workflow": true},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	// Префикс Bearer срезается самим валидатором
	claims, err := v.VerifyToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "jsmith", claims.UserID)
	assert.True(t, claims.Scopes["close.workflow"])

	claims, err = v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "jsmith", claims.UserID)
}

func TestVerifyTokenRejectsForeignKey(t *testing.T) {
	t.Parallel()
	foreign, _ := newKeyPair(t)
	_, v := newKeyPair(t)

	token := signClaims(t, foreign, domain.CustomClaims{
		UserID: "intruder",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	_, err := v.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	t.Parallel()
	key, v := newKeyPair(t)

	token := signClaims(t, key, domain.CustomClaims{
		UserID: "jsmith",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	_, err := v.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRequiresUserID(t *testing.T) {
	t.Parallel()
	key, v := newKeyPair(t)

	// Подпись валидна, но атрибутировать действия некому
	token := signClaims(t, key, domain.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	_, err := v.VerifyToken(token)
	require.ErrorIs(t, err, ErrNoSubject)
}

func TestVerifyTokenRejectsSymmetricAlg(t *testing.T) {
	t.Parallel()
	_, v := newKeyPair(t)

	// Подмена алгоритма на HS256 не должна проходить проверку
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, domain.CustomClaims{UserID: "intruder"}).
		SignedString([]byte("guessable-secret"))
	require.NoError(t, err)

	_, err = v.VerifyToken(token)
	assert.Error(t, err)
}

func TestParseRSAPublicKey(t *testing.T) {
	t.Parallel()

	_, err := ParseRSAPublicKey(nil)
	assert.Error(t, err)

	_, err = ParseRSAPublicKey([]byte("not a pem"))
	assert.Error(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParseRSAPublicKey(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, parsed.N)
}
