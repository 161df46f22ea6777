package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/mabumusa1/ses-plugin/email"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "ses-plugin:"

// Redis shares the quota and the template registry for one access key between
// every process using the same server.
type Redis struct {
	Client    redis.Cmdable
	Prefix    string
	AccessKey string
}

var (
	_ email.QuotaCache       = &Redis{}
	_ email.TemplateRegistry = &Redis{}
)

func NewRedis(url, accessKey string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return &Redis{
		Client:    redis.NewClient(opts),
		Prefix:    DefaultRedisPrefix,
		AccessKey: accessKey,
	}, nil
}

func (r *Redis) Close() error {
	if closer, ok := r.Client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (r *Redis) quotaKey() string {
	return r.Prefix + "quota:" + r.AccessKey
}

func (r *Redis) templatesKey() string {
	return r.Prefix + "templates:" + r.AccessKey
}

func (r *Redis) GetQuota(ctx context.Context) (*email.QuotaState, error) {
	data, err := r.Client.Get(ctx, r.quotaKey()).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get cached quota: %w", err)
	}

	state := &email.QuotaState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse cached quota: %w", err)
	}
	return state, nil
}

func (r *Redis) SetQuota(
	ctx context.Context, state *email.QuotaState, ttl time.Duration,
) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode quota: %w", err)
	} else if err = r.Client.Set(ctx, r.quotaKey(), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache quota: %w", err)
	}
	return nil
}

func (r *Redis) IsRegistered(ctx context.Context, name string) (bool, error) {
	ok, err := r.Client.SIsMember(ctx, r.templatesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up template %s: %w", name, err)
	}
	return ok, nil
}

func (r *Redis) Register(ctx context.Context, name string) (bool, error) {
	n, err := r.Client.SAdd(ctx, r.templatesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register template %s: %w", name, err)
	}
	return n == 1, nil
}

func (r *Redis) Unregister(ctx context.Context, name string) error {
	if err := r.Client.SRem(ctx, r.templatesKey(), name).Err(); err != nil {
		return fmt.Errorf("failed to unregister template %s: %w", name, err)
	}
	return nil
}

func (r *Redis) Registered(ctx context.Context) ([]string, error) {
	names, err := r.Client.SMembers(ctx, r.templatesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	slices.Sort(names)
	return names, nil
}
