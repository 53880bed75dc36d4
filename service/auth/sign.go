package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// SignFormat selects which verifier a produced signature is meant for.
type SignFormat string

const (
	FormatRaw SignFormat = "raw" // Ed25519Verifier
	FormatJWT SignFormat = "jwt" // JWTVerifier
)

// Sign answers a challenge the way a client does. For ed25519 keys private
// is the 32 byte seed; for hmac keys it is the shared secret, which only the
// jwt format supports.
func Sign(typ KeyType, private []byte, secret, user string, format SignFormat, ttl time.Duration) (string, error) {
	payload := Payload(secret, user)

	var (
		method  jwtlib.SigningMethod
		signKey any
	)
	switch typ {
	case KeyEd25519:
		if len(private) != ed25519.SeedSize {
			return "", fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(private))
		}
		priv := ed25519.NewKeyFromSeed(private)
		if format == FormatRaw {
			return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload)), nil
		}
		method, signKey = jwtlib.SigningMethodEdDSA, priv
	case KeyHMAC:
		if format == FormatRaw {
			return "", errors.New("hmac keys can only sign jwt")
		}
		if len(private) == 0 {
			return "", errors.New("empty hmac key")
		}
		method, signKey = jwtlib.SigningMethodHS256, private
	default:
		return "", fmt.Errorf("unknown key type %q", typ)
	}
	if format != FormatJWT {
		return "", fmt.Errorf("unknown sign format %q", format)
	}

	now := time.Now()
	claims := Claims{
		Payload: string(payload),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:  user,
			IssuedAt: jwtlib.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	}
	token, err := jwtlib.NewWithClaims(method, claims).SignedString(signKey)
	if err != nil {
		return "", errors.Wrap(err, "sign jwt")
	}
	return token, nil
}
