package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"signalcore/internal/domain"
)

// RedisDirectory keeps bundles in Redis so several key directory processes
// can serve one population. Layout under prefix:
//   - {prefix}:bundle:{user}.{device}  JSON bundle without one-time pre-keys
//   - {prefix}:opks:{user}.{device}    list of JSON one-time pre-keys
//   - {prefix}:accounts                hash uuid -> username
type RedisDirectory struct {
	client *goredis.Client
	prefix string
}

// NewRedisDirectory returns a directory over client.
func NewRedisDirectory(client *goredis.Client, prefix string) *RedisDirectory {
	return &RedisDirectory{client: client, prefix: prefix}
}

func (d *RedisDirectory) bundleKey(k string) string { return d.prefix + ":bundle:" + k }
func (d *RedisDirectory) opksKey(k string) string { return d.prefix + ":opks:" + k }
func (d *RedisDirectory) accountsKey() string { return d.prefix + ":accounts" }

func (d *RedisDirectory) Publish(ctx context.Context, b domain.PublishedBundle) error {
	k := deviceKey(b.Username, b.DeviceID)
	opks := make([]any, 0, len(b.OneTimePreKeys))
	for _, opk := range b.OneTimePreKeys {
		raw, err := json.Marshal(opk)
		if err != nil {
			return err
		}
		opks = append(opks, raw)
	}
	b.OneTimePreKeys = nil
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, d.bundleKey(k), raw, 0)
		pipe.Del(ctx, d.opksKey(k))
		if len(opks) > 0 {
			pipe.RPush(ctx, d.opksKey(k), opks...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", k, err)
	}
	return nil
}

func (d *RedisDirectory) Take(ctx context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, *domain.OneTimePreKeyPublic, error) {
	b, err := d.Get(ctx, username, deviceID)
	if err != nil {
		return domain.PublishedBundle{}, nil, err
	}
	raw, err := d.client.LPop(ctx, d.opksKey(deviceKey(username, deviceID))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return b, nil, nil
	}
	if err != nil {
		return domain.PublishedBundle{}, nil, err
	}
	var opk domain.OneTimePreKeyPublic
	if err := json.Unmarshal(raw, &opk); err != nil {
		return domain.PublishedBundle{}, nil, fmt.Errorf("decode one-time pre-key: %w", err)
	}
	return b, &opk, nil
}

func (d *RedisDirectory) Get(ctx context.Context, username domain.Username, deviceID uint32) (domain.PublishedBundle, error) {
	k := deviceKey(username, deviceID)
	raw, err := d.client.Get(ctx, d.bundleKey(k)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.PublishedBundle{}, fmt.Errorf("bundle %s: %w", k, ErrNotFound)
	}
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	var b domain.PublishedBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.PublishedBundle{}, fmt.Errorf("decode bundle %s: %w", k, err)
	}
	return b, nil
}

func (d *RedisDirectory) BindAccount(ctx context.Context, uuid string, username domain.Username) error {
	set, err := d.client.HSetNX(ctx, d.accountsKey(), uuid, string(username)).Result()
	if err != nil {
		return err
	}
	if set {
		return nil
	}
	bound, err := d.LookupAccount(ctx, uuid)
	if err != nil {
		return err
	}
	if bound != username {
		return fmt.Errorf("%s: %w", uuid, ErrUUIDTaken)
	}
	return nil
}

func (d *RedisDirectory) LookupAccount(ctx context.Context, uuid string) (domain.Username, error) {
	u, err := d.client.HGet(ctx, d.accountsKey(), uuid).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("account %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return domain.Username(u), nil
}

var _ Directory = (*RedisDirectory)(nil)
