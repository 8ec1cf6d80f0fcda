package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/voicecore/pkg/audiosession"
	"github.com/teslashibe/voicecore/pkg/backend"
)

// RedisConfig addresses the Redis server.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Redis stores credentials and preferences in two hashes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "voicecore:"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) credentialsKey() string { return r.prefix + "credentials" }
func (r *Redis) settingsKey() string    { return r.prefix + "settings" }

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Get returns the credential for id.
func (r *Redis) Get(ctx context.Context, id backend.ID) (string, error) {
	v, err := r.client.HGet(ctx, r.credentialsKey(), string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}
	return v, nil
}

// Save stores the credential for id.
func (r *Redis) Save(ctx context.Context, id backend.ID, credential string) error {
	if err := r.client.HSet(ctx, r.credentialsKey(), string(id), credential).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Delete removes the credential for id.
func (r *Redis) Delete(ctx context.Context, id backend.ID) error {
	if err := r.client.HDel(ctx, r.credentialsKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

const (
	fieldSelected     = "selected_backend"
	fieldOutputMode   = "output_mode"
	fieldPersonaVoice = "persona_voice"
	fieldLastWorking  = "last_working"
	fieldLastChosen   = "last_chosen"
)

// Settings returns a Settings view over the same connection.
func (r *Redis) Settings() *RedisSettings { return &RedisSettings{r: r} }

// RedisSettings stores Preferences as hash fields.
type RedisSettings struct {
	r *Redis
}

func (s *RedisSettings) Load(ctx context.Context) (Preferences, error) {
	return s.load(ctx, s.r.client)
}

func (s *RedisSettings) load(ctx context.Context, c redis.Cmdable) (Preferences, error) {
	fields, err := c.HGetAll(ctx, s.r.settingsKey()).Result()
	if err != nil {
		return Preferences{}, fmt.Errorf("load settings: %w", err)
	}
	return Preferences{
		SelectedBackend: backend.ID(fields[fieldSelected]),
		OutputMode:      audiosession.OutputMode(fields[fieldOutputMode]),
		PersonaVoice:    fields[fieldPersonaVoice],
		LastWorking:     backend.ID(fields[fieldLastWorking]),
		LastChosen:      backend.ID(fields[fieldLastChosen]),
	}, nil
}

// Update runs fn inside an optimistic transaction on the settings hash.
func (s *RedisSettings) Update(ctx context.Context, fn func(*Preferences)) error {
	key := s.r.settingsKey()
	txf := func(tx *redis.Tx) error {
		p, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		fn(&p)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			values := map[string]any{}
			set := func(field, v string) {
				if v != "" {
					values[field] = v
				}
			}
			set(fieldSelected, string(p.SelectedBackend))
			set(fieldOutputMode, string(p.OutputMode))
			set(fieldPersonaVoice, p.PersonaVoice)
			set(fieldLastWorking, string(p.LastWorking))
			set(fieldLastChosen, string(p.LastChosen))
			if len(values) > 0 {
				pipe.HSet(ctx, key, values)
			}
			return nil
		})
		return err
	}

	for range 3 {
		err := s.r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		return nil
	}
	return fmt.Errorf("update settings: %w", redis.TxFailedErr)
}

var (
	_ Credentials = (*Redis)(nil)
	_ Settings    = (*RedisSettings)(nil)
)
