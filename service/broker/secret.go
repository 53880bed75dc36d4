package broker

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

func newSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random secret")
	}
	return hex.EncodeToString(b), nil
}
