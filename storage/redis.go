package storage

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cacheable:"

type RedisOptions struct {
	// Prefix is prepended to scope names to form hash keys.
	// Defaults to "cacheable:".
	Prefix string

	// Context is used for all commands. Defaults to context.Background().
	Context context.Context

	Logger *slog.Logger
}

// Redis stores every scope in a hash keyed by Prefix+scope.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ctx    context.Context
	logger *slog.Logger
	closed atomic.Bool
}

// NewRedis wraps an existing client. Close does not close the client.
func NewRedis(client redis.UniversalClient, opt RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("storage: redis client is nil")
	}
	if opt.Prefix == "" {
		opt.Prefix = defaultRedisPrefix
	}
	if opt.Context == nil {
		opt.Context = context.Background()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Redis{
		client: client,
		prefix: opt.Prefix,
		ctx:    opt.Context,
		logger: opt.Logger,
	}, nil
}

func (s *Redis) hash(scope string) string {
	return s.prefix + scope
}

func (s *Redis) Get(scope string, key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	v, err := s.client.HGet(s.ctx, s.hash(scope), string(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Redis) Set(scope string, key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.HSet(s.ctx, s.hash(scope), string(key), value).Err()
}

func (s *Redis) Remove(scope string, key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.HDel(s.ctx, s.hash(scope), string(key)).Err()
}

// Scan loads the whole hash and sorts it by key.
func (s *Redis) Scan(scope string, f func(key, value []byte) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	m, err := s.client.HGetAll(s.ctx, s.hash(scope)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	s.logger.Debug("storage: redis scan", "hash", s.hash(scope), "keys", len(keys))
	for _, k := range keys {
		if err := f([]byte(k), []byte(m[k])); err != nil {
			return err
		}
	}
	return nil
}

func (s *Redis) Close() error {
	s.closed.Store(true)
	return nil
}
