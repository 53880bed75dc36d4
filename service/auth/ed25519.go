package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"

	"github.com/pkg/errors"
)

// Ed25519Verifier checks a base64 ed25519 signature over the payload
// against the user's public key.
type Ed25519Verifier struct {
	keys *Keyring
}

func NewEd25519Verifier(keys *Keyring) *Ed25519Verifier {
	return &Ed25519Verifier{keys: keys}
}

func (v *Ed25519Verifier) Verify(_ context.Context, payload []byte, user, sign string) error {
	key, ok := v.keys.Lookup(user)
	if !ok {
		return errors.Wrapf(ErrBadSignature, "unknown user %s", user)
	}
	if key.Type != KeyEd25519 {
		return errors.Wrapf(ErrBadSignature, "user %s has a %s key", user, key.Type)
	}
	sig, err := decodeSignature(sign)
	if err != nil {
		return errors.Wrap(ErrBadSignature, "signature is not base64")
	}
	if !ed25519.Verify(ed25519.PublicKey(key.Raw), payload, sig) {
		return ErrBadSignature
	}
	return nil
}

// decodeSignature accepts standard and URL-safe base64, padded or not.
func decodeSignature(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}
