// Package redisstore implements the signup and status repositories on Redis.
//
// An email is claimed with SET NX on {prefix}:email:<key>, holding the
// signup ID and a TTL. Commit runs a Lua script that checks the claim is
// still ours, writes the record hash, appends it to the index, bumps the
// role counter and makes the claim permanent, all atomically. Release
// deletes the claim only while it still holds our ID.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed repository. Safe for concurrent use.
type Store struct {
	client         *redis.Client
	prefix         string
	reservationTTL time.Duration
	pageSize       int64
}

// Open connects to the Redis server at url and verifies the connection.
func Open(ctx context.Context, url, prefix string, reservationTTL time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix, reservationTTL), nil
}

// New wraps an existing client. The Store takes ownership of client.
func New(client *redis.Client, prefix string, reservationTTL time.Duration) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "waitlist"
	}
	if reservationTTL <= 0 {
		reservationTTL = 30 * time.Second
	}
	return &Store{client: client, prefix: prefix, reservationTTL: reservationTTL, pageSize: 200}
}

// Name identifies the backend in health reports.
func (s *Store) Name() string { return "redis" }

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) claimKey(emailKey string) string { return s.prefix + ":email:" + emailKey }
func (s *Store) recordKey(id string) string      { return s.prefix + ":signup:" + id }
func (s *Store) indexKey() string                { return s.prefix + ":signups" }
func (s *Store) rolesKey() string                { return s.prefix + ":roles" }
func (s *Store) seqKey() string                  { return s.prefix + ":seq" }
func (s *Store) statusKey() string               { return s.prefix + ":status_checks" }
