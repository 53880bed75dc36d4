package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Directory records which gateway node holds an authenticated channel so
// backends can address push deliveries. Entries are advisory: they expire
// on their own and a stale entry only costs a not-found delivery.
type Directory interface {
	Bind(ctx context.Context, channelID, user string) error
	Unbind(ctx context.Context, channelID string) error
}

// Entry is one directory record.
type Entry struct {
	ChannelID string
	Node      string
	User      string
}

// NopDirectory records nothing.
type NopDirectory struct{}

func (NopDirectory) Bind(context.Context, string, string) error { return nil }
func (NopDirectory) Unbind(context.Context, string) error       { return nil }

const (
	fieldNode = "node"
	fieldUser = "user"
)

// channel key: gate:channel:<channelID> -> hash{node, user}
func channelKey(prefix, channelID string) string { return prefix + ":channel:" + channelID }

// user key: gate:user:<user> -> set of channelIDs
func userKey(prefix, user string) string { return prefix + ":user:" + user }

// RedisDirectory keeps the directory in Redis hashes with a TTL.
type RedisDirectory struct {
	rdb    redis.Cmdable
	prefix string
	node   string
	ttl    time.Duration
}

func NewRedisDirectory(rdb redis.Cmdable, prefix, node string, ttl time.Duration) *RedisDirectory {
	if prefix == "" {
		prefix = "gate"
	}
	return &RedisDirectory{rdb: rdb, prefix: prefix, node: node, ttl: ttl}
}

func (d *RedisDirectory) Bind(ctx context.Context, channelID, user string) error {
	ck := channelKey(d.prefix, channelID)
	uk := userKey(d.prefix, user)
	_, err := d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, ck, fieldNode, d.node, fieldUser, user)
		p.Expire(ctx, ck, d.ttl)
		p.SAdd(ctx, uk, channelID)
		p.Expire(ctx, uk, d.ttl)
		return nil
	})
	return errors.Wrapf(err, "bind channel %s", channelID)
}

func (d *RedisDirectory) Unbind(ctx context.Context, channelID string) error {
	ck := channelKey(d.prefix, channelID)
	user, err := d.rdb.HGet(ctx, ck, fieldUser).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "unbind channel %s", channelID)
	}
	_, err = d.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, ck)
		p.SRem(ctx, userKey(d.prefix, user), channelID)
		return nil
	})
	return errors.Wrapf(err, "unbind channel %s", channelID)
}

// Lookup returns the record for channelID.
func (d *RedisDirectory) Lookup(ctx context.Context, channelID string) (Entry, bool, error) {
	m, err := d.rdb.HGetAll(ctx, channelKey(d.prefix, channelID)).Result()
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "lookup channel %s", channelID)
	}
	if len(m) == 0 {
		return Entry{}, false, nil
	}
	return Entry{ChannelID: channelID, Node: m[fieldNode], User: m[fieldUser]}, true, nil
}

// Channels lists the channels currently bound to user on any node.
func (d *RedisDirectory) Channels(ctx context.Context, user string) ([]string, error) {
	ids, err := d.rdb.SMembers(ctx, userKey(d.prefix, user)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list channels of %s", user)
	}
	return ids, nil
}
