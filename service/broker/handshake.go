package broker

import (
	"context"
	"encoding/json"

	"PGateway/service/auth"
	"PGateway/service/gate"
	"PGateway/service/metrics"
	"PGateway/service/rpc"
	"PGateway/tools/decode"
	"PGateway/tools/errs"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type authParams struct {
	User string `json:"user"`
	Sign string `json:"sign"`
}

type authOK struct {
	Status string `json:"status"`
}

func (b *Broker) message(ctx context.Context, peer gate.Peer, data json.RawMessage, pipe gate.Pipe) error {
	c, ok := b.reg.get(peer.ChannelID)
	if !ok {
		return errors.Errorf("message for unregistered channel %s", peer.ChannelID)
	}

	req, id, cerr := rpc.ParseRequest(data)
	if cerr != nil {
		b.log.Debug("invalid request", zap.String("channel_id", c.id), zap.String("detail", cerr.Detail))
		b.reply(c, pipe, rpc.Failure(id, cerr))
		return nil
	}

	state, _, _ := c.snapshot()
	if state == StateAuthenticated {
		return b.route(ctx, c, req, pipe)
	}

	switch req.Method {
	case MethodResendChallenge:
		b.resendChallenge(c, req, pipe)
	case MethodAuthenticate:
		b.authenticate(ctx, c, req, pipe)
	default:
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrMethodNotAllowed))
	}
	return nil
}

// resendChallenge answers with the stored secret. It never rotates it.
func (b *Broker) resendChallenge(c *Channel, req *rpc.Request, pipe gate.Pipe) {
	_, secret, _ := c.snapshot()
	b.reply(c, pipe, rpc.Success(req.ID, challenge{Secret: secret}))
}

func (b *Broker) authenticate(ctx context.Context, c *Channel, req *rpc.Request, pipe gate.Pipe) {
	log := b.log.With(zap.String("channel_id", c.id))

	p, err := decode.Raw[authParams](req.Params)
	if err != nil || p.User == "" || p.Sign == "" {
		b.metrics.AuthAttempt(metrics.OutcomeInvalid)
		detail := "user and sign must be non-empty strings"
		if err != nil {
			detail = err.Error()
		}
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrValidation.WithDetail(detail)))
		return
	}

	state, secret, _ := c.snapshot()
	if state != StateChallengeIssued {
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrMethodNotAllowed))
		return
	}

	if err := b.verifier.Verify(ctx, auth.Payload(secret, p.User), p.User, p.Sign); err != nil {
		if errors.Is(err, auth.ErrBadSignature) {
			b.metrics.AuthAttempt(metrics.OutcomeRejected)
			log.Info("authentication rejected", zap.String("user", p.User), zap.Error(err))
		} else {
			b.metrics.AuthAttempt(metrics.OutcomeError)
			log.Warn("verifier failed", zap.String("user", p.User), zap.Error(err))
		}
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrAuth))
		return
	}

	if !c.bind(p.User, pipe) {
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrMethodNotAllowed))
		return
	}
	b.metrics.AuthAttempt(metrics.OutcomeOK)
	log.Info("channel authenticated", zap.String("user", p.User))

	if err := b.dir.Bind(ctx, c.id, p.User); err != nil {
		b.metrics.DirectoryError()
		log.Warn("directory bind", zap.Error(err))
	}
	b.reply(c, pipe, rpc.Success(req.ID, authOK{Status: "OK"}))
}
