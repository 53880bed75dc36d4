package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// JWTVerifier accepts a compact JWT as the signature. The token must be
// signed with the user's key (EdDSA for ed25519 keys, HS256/384/512 for
// hmac keys) and carry sub == user and payload == the verification payload.
type JWTVerifier struct {
	keys *Keyring
}

// Claims is the token body JWTVerifier expects.
type Claims struct {
	Payload string `json:"payload"`
	jwtlib.RegisteredClaims
}

func NewJWTVerifier(keys *Keyring) *JWTVerifier {
	return &JWTVerifier{keys: keys}
}

func (v *JWTVerifier) Verify(_ context.Context, payload []byte, user, sign string) error {
	key, ok := v.keys.Lookup(user)
	if !ok {
		return errors.Wrapf(ErrBadSignature, "unknown user %s", user)
	}

	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(sign, claims, func(t *jwtlib.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwtlib.SigningMethodEd25519:
			if key.Type != KeyEd25519 {
				return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
			}
			return ed25519.PublicKey(key.Raw), nil
		case *jwtlib.SigningMethodHMAC:
			if key.Type != KeyHMAC {
				return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
			}
			return key.Raw, nil
		default:
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
	},
		jwtlib.WithValidMethods([]string{"EdDSA", "HS256", "HS384", "HS512"}),
		jwtlib.WithSubject(user),
	)
	if err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}
	if claims.Payload != string(payload) {
		return errors.Wrap(ErrBadSignature, "payload claim mismatch")
	}
	return nil
}
