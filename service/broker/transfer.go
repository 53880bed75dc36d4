package broker

import (
	"context"
	"encoding/json"

	"PGateway/service/gate"
	"PGateway/service/metrics"
	"PGateway/service/rpc"
	"PGateway/tools/errs"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TransferRequest is a backend initiated push to one channel.
type TransferRequest struct {
	ChannelID string          `json:"channelId"`
	Method    string          `json:"method"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

const transferOK = "Ok"

func (b *Broker) transfer(ctx context.Context, body json.RawMessage) (any, error) {
	var t TransferRequest
	if err := json.Unmarshal(body, &t); err != nil {
		b.metrics.Transfer(metrics.OutcomeInvalid)
		return nil, errs.ErrInvalidRequest.WithDetail(err.Error())
	}
	return b.Deliver(ctx, t)
}

// Deliver writes t to its channel as a notification without id; a push
// with neither result nor error carries result null. It fails
// with DeliveryNotFound when the channel is gone or not authenticated and
// with DeliveryFatal when the write fails.
func (b *Broker) Deliver(_ context.Context, t TransferRequest) (string, error) {
	if t.ChannelID == "" || t.Method == "" {
		b.metrics.Transfer(metrics.OutcomeInvalid)
		return "", errs.ErrInvalidRequest.WithDetail("channelId and method are required")
	}
	log := b.log.With(zap.String("channel_id", t.ChannelID), zap.String("method", t.Method))

	c, ok := b.reg.get(t.ChannelID)
	if !ok {
		b.metrics.Transfer(metrics.OutcomeNotFound)
		log.Debug("transfer target not found")
		return "", errs.ErrDeliveryNotFound.WithDetail(t.ChannelID)
	}
	pipe := c.livePipe()
	if pipe == nil {
		b.metrics.Transfer(metrics.OutcomeNotFound)
		log.Debug("transfer target not authenticated")
		return "", errs.ErrDeliveryNotFound.WithDetail(t.ChannelID)
	}

	n := &rpc.Notification{Method: t.Method}
	if len(t.Error) > 0 && string(t.Error) != "null" {
		n.Error = t.Error
	} else {
		n.Result = t.Result
		if len(n.Result) == 0 {
			n.Result = json.RawMessage("null")
		}
	}

	if err := pipe(n); err != nil {
		if errors.Is(err, gate.ErrPipeClosed) {
			b.metrics.Transfer(metrics.OutcomeNotFound)
			return "", errs.ErrDeliveryNotFound.WithDetail(t.ChannelID)
		}
		b.metrics.Transfer(metrics.OutcomeFatal)
		log.Warn("transfer write failed", zap.Error(err))
		return "", errs.ErrDeliveryFatal.WithDetail(err.Error())
	}
	b.metrics.Transfer(metrics.OutcomeOK)
	return transferOK, nil
}
