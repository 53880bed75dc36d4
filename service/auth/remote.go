package auth

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// RemoteVerifier delegates verification to a backend service through the
// internal gate. The backend answers {"result":{"valid":bool}} or an error.
type RemoteVerifier struct {
	caller  Caller
	service string
	action  string
}

type remoteRequest struct {
	User    string `json:"user"`
	Sign    string `json:"sign"`
	Payload string `json:"payload"`
}

type remoteResult struct {
	Valid bool `json:"valid"`
}

func NewRemoteVerifier(caller Caller, service, action string) *RemoteVerifier {
	if service == "" {
		service = "auth"
	}
	if action == "" {
		action = "verifySign"
	}
	return &RemoteVerifier{caller: caller, service: service, action: action}
}

func (v *RemoteVerifier) Verify(ctx context.Context, payload []byte, user, sign string) error {
	reply, err := v.caller.SendTo(ctx, v.service, v.action, remoteRequest{
		User:    user,
		Sign:    sign,
		Payload: string(payload),
	})
	if err != nil {
		return errors.Wrapf(err, "call %s.%s", v.service, v.action)
	}
	if reply.Error != nil {
		return errors.Wrap(ErrBadSignature, reply.Error.Error())
	}
	var res remoteResult
	if err := json.Unmarshal(reply.Result, &res); err != nil {
		return errors.Wrap(err, "decode verify result")
	}
	if !res.Valid {
		return ErrBadSignature
	}
	return nil
}
