package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Ledger implements storage.FailureLedger as a Redis set.
type Ledger struct {
	rdb *redis.Client
	key string
}

// NewLedger creates a Redis-backed failure ledger under key.
func NewLedger(client *Client, key string) *Ledger {
	return &Ledger{
		rdb: client.rdb,
		key: key,
	}
}

// Key returns the set key.
func (l *Ledger) Key() string {
	return l.key
}

// Add adds a member to the set.
func (l *Ledger) Add(ctx context.Context, member string) error {
	if err := l.rdb.SAdd(ctx, l.key, member).Err(); err != nil {
		return fmt.Errorf("sadd failed: %w", err)
	}
	return nil
}

// Members returns every member of the set.
func (l *Ledger) Members(ctx context.Context) ([]string, error) {
	members, err := l.rdb.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	return members, nil
}

// Remove removes members from the set.
func (l *Ledger) Remove(ctx context.Context, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := l.rdb.SRem(ctx, l.key, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("srem failed: %w", err)
	}
	return nil
}

// Replace swaps old members for member inside MULTI/EXEC.
func (l *Ledger) Replace(ctx context.Context, old []string, member string) error {
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(old) > 0 {
			pipe.SRem(ctx, l.key, toArgs(old)...)
		}
		pipe.SAdd(ctx, l.key, member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace failed: %w", err)
	}
	return nil
}

// Count returns the set cardinality.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	count, err := l.rdb.SCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard failed: %w", err)
	}
	return int(count), nil
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
