package ids

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MaxNode is the largest node id a Snowflake generator accepts.
const MaxNode = 1023

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Snowflake 雪花ID: 41 bit milliseconds since 2020-01-01, 10 bit node,
// 12 bit sequence. Ids from one generator are strictly increasing.
type Snowflake struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
	now      func() time.Time
	sleep    func(time.Duration)
}

func NewSnowflake(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > MaxNode {
		return nil, fmt.Errorf("snowflake node id %d out of range 0..%d", nodeID, MaxNode)
	}
	return &Snowflake{
		epochMS: epoch.UnixMilli(),
		nodeID:  nodeID,
		now:     time.Now,
		sleep:   time.Sleep,
	}, nil
}

// Next returns a new id.
func (g *Snowflake) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now().UnixMilli()
		if now < g.lastTSMS {
			// 时钟回拨，等待
			g.sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// 序列溢出，等到下一毫秒
				for now <= g.lastTSMS {
					now = g.now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & ((1 << 41) - 1)
		return (ts << 22) | (g.nodeID << 12) | g.seq
	}
}

// NextString is Next in base 10; it fits gate.WithIDGenerator.
func (g *Snowflake) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

// Node extracts the node id an id was generated on.
func Node(id int64) int64 {
	return (id >> 12) & MaxNode
}
