// Package redisstore is the redis-backed session store used outside DEV
// mode. Each client gets a hash keyed by its client ID, plus a pub/sub
// channel carrying change notifications for the watch feed.
package redisstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
)

type (
	Provider struct {
		rdb *redis.Client
	}

	clientStore struct {
		rdb      *redis.Client
		hashKey  string
		eventsCh string
	}
)

var _ session.Provider = (*Provider)(nil)

func NewProvider(conf *core.Config) *Provider {
	return &Provider{
		rdb: redis.NewClient(&redis.Options{
			Addr:     conf.SessionStoreAddr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

// NewProviderWithClient is used by tests to point the provider at a fake.
func NewProviderWithClient(rdb *redis.Client) *Provider {
	return &Provider{rdb: rdb}
}

func (p *Provider) Close() error { return p.rdb.Close() }

func (p *Provider) ForClient(clientID string) session.Store {
	return &clientStore{
		rdb:      p.rdb,
		hashKey:  "session:" + clientID,
		eventsCh: "session-events:" + clientID,
	}
}

func (cs *clientStore) Get(ctx context.Context, key string) (string, error) {
	v, err := cs.rdb.HGet(ctx, cs.hashKey, key).Result()
	if err == redis.Nil {
		return "", session.ErrKeyNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis HGET")
	}
	return v, nil
}

func (cs *clientStore) Set(ctx context.Context, key, value string) error {
	if err := cs.rdb.HSet(ctx, cs.hashKey, key, value).Err(); err != nil {
		return errors.Wrap(err, "redis HSET")
	}
	return cs.publish(ctx, key, value)
}

func (cs *clientStore) Delete(ctx context.Context, keys ...string) error {
	if err := cs.rdb.HDel(ctx, cs.hashKey, keys...).Err(); err != nil {
		return errors.Wrap(err, "redis HDEL")
	}
	for _, key := range keys {
		if err := cs.publish(ctx, key, ""); err != nil {
			return err
		}
	}
	return nil
}

func (cs *clientStore) Watch(ctx context.Context) (<-chan session.Event, error) {
	sub := cs.rdb.Subscribe(ctx, cs.eventsCh)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "redis SUBSCRIBE")
	}

	events := make(chan session.Event, 16)
	go func() {
		defer close(events)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key, value, _ := strings.Cut(msg.Payload, "\x00")
				select {
				case events <- session.Event{Key: key, Value: value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

func (cs *clientStore) publish(ctx context.Context, key, value string) error {
	if err := cs.rdb.Publish(ctx, cs.eventsCh, key+"\x00"+value).Err(); err != nil {
		return errors.Wrap(err, "redis PUBLISH")
	}
	return nil
}
