package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"PGateway/global/config"
	"PGateway/service/rpc"

	"github.com/pkg/errors"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("auth: bad signature")

// Verifier checks that sign is user's signature over payload. It returns
// nil on success, ErrBadSignature (possibly wrapped) on rejection and any
// other error when verification could not be carried out.
type Verifier interface {
	Verify(ctx context.Context, payload []byte, user, sign string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, payload []byte, user, sign string) error

func (f VerifierFunc) Verify(ctx context.Context, payload []byte, user, sign string) error {
	return f(ctx, payload, user, sign)
}

// Caller is the part of the internal gate a remote verifier needs.
type Caller interface {
	SendTo(ctx context.Context, service, action string, payload any) (*rpc.Reply, error)
}

// Payload is the document a client signs to authenticate: compact JSON
// with a fixed field order so both sides produce identical bytes.
func Payload(secret, user string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(struct {
		Secret string `json:"secret"`
		User   string `json:"user"`
	}{secret, user})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// New builds the verifier selected by cfg. caller is only used by the
// remote verifier and may be nil otherwise.
func New(cfg config.AuthConfig, caller Caller) (Verifier, error) {
	switch cfg.Verifier {
	case "ed25519", "jwt":
		keys, err := LoadKeyring(cfg.KeysFile)
		if err != nil {
			return nil, err
		}
		if cfg.Verifier == "jwt" {
			return NewJWTVerifier(keys), nil
		}
		return NewEd25519Verifier(keys), nil
	case "remote":
		if caller == nil {
			return nil, errors.New("auth: remote verifier needs a gate")
		}
		return NewRemoteVerifier(caller, cfg.RemoteService, cfg.RemoteAction), nil
	default:
		return nil, fmt.Errorf("auth: unknown verifier %q", cfg.Verifier)
	}
}
