package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/status"
)

// Status checks live in a capped list, newest first.
func (s *Store) CreateStatusCheck(ctx context.Context, c *domain.StatusCheck) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal status check: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.statusKey(), data)
	pipe.LTrim(ctx, s.statusKey(), 0, status.MaxList-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create status check: %w", err)
	}
	return nil
}

func (s *Store) ListStatusChecks(ctx context.Context, limit int) ([]domain.StatusCheck, error) {
	items, err := s.client.LRange(ctx, s.statusKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list status checks: %w", err)
	}
	out := make([]domain.StatusCheck, 0, len(items))
	for _, item := range items {
		var c domain.StatusCheck
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			return nil, fmt.Errorf("decode status check: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

var _ status.Repository = (*Store)(nil)
