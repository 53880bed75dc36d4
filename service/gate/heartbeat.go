package gate

import (
	"time"

	"go.uber.org/zap"
)

func (g *Gateway) heartbeat() {
	defer g.wg.Done()
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-t.C:
			g.sweepOnce()
		}
	}
}

// sweepOnce terminates every socket that stayed silent since the previous
// sweep and pings the rest. A socket whose handler is still running is
// never terminated, its reader may be parked on a full event queue. It
// returns the number of terminated sockets.
func (g *Gateway) sweepOnce() int {
	g.mu.RLock()
	live := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		live = append(live, c)
	}
	g.mu.RUnlock()

	dropped := 0
	for _, c := range live {
		if !c.alive.Swap(false) && !c.busy.Load() {
			g.forget(c.id)
			c.terminate(true)
			g.metrics.HeartbeatTerminated()
			g.log.Info("heartbeat timeout, terminating", zap.String("channel_id", c.id))
			dropped++
			continue
		}
		if err := c.ping(); err != nil {
			g.log.Debug("ping failed", zap.String("channel_id", c.id), zap.Error(err))
		}
	}
	return dropped
}
