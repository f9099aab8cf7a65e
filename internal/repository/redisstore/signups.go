package redisstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

// KEYS: claim, record, index, roles, seq
// ARGV: id, role, field, value, field, value, ...
// A committed claim is rewritten as "c:<id>" without a TTL, so a late
// Release no longer matches it.
var commitScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) ~= ARGV[1] then
		return 0
	end
	local fields = {}
	for i = 3, #ARGV do
		fields[#fields + 1] = ARGV[i]
	end
	redis.call("hset", KEYS[2], unpack(fields))
	local seq = redis.call("incr", KEYS[5])
	redis.call("zadd", KEYS[3], seq, ARGV[1])
	redis.call("hincrby", KEYS[4], ARGV[2], 1)
	redis.call("set", KEYS[1], "c:" .. ARGV[1])
	return 1
`)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// record is the hash layout of a committed signup.
type record struct {
	ID                 string `redis:"id"`
	Email              string `redis:"email"`
	EmailKey           string `redis:"email_key"`
	Role               string `redis:"role"`
	FounderStage       string `redis:"founder_stage"`
	FundingStage       string `redis:"funding_stage"`
	BiggestPain        string `redis:"biggest_pain"`
	DetailedPain       string `redis:"detailed_pain"`
	CreatedAt          string `redis:"created_at"`
	SyncStatus         string `redis:"sync_status"`
	SyncExternalID     string `redis:"sync_external_id"`
	SyncExternalStatus string `redis:"sync_external_status"`
}

func (r record) fields() []interface{} {
	return []interface{}{
		"id", r.ID,
		"email", r.Email,
		"email_key", r.EmailKey,
		"role", r.Role,
		"founder_stage", r.FounderStage,
		"funding_stage", r.FundingStage,
		"biggest_pain", r.BiggestPain,
		"detailed_pain", r.DetailedPain,
		"created_at", r.CreatedAt,
		"sync_status", r.SyncStatus,
		"sync_external_id", r.SyncExternalID,
		"sync_external_status", r.SyncExternalStatus,
	}
}

func (r record) signup() (domain.Signup, error) {
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return domain.Signup{}, fmt.Errorf("parse created_at for %s: %w", r.ID, err)
	}
	return domain.Signup{
		ID:           r.ID,
		Email:        r.Email,
		EmailKey:     r.EmailKey,
		Role:         r.Role,
		FounderStage: r.FounderStage,
		FundingStage: r.FundingStage,
		BiggestPain:  r.BiggestPain,
		DetailedPain: r.DetailedPain,
		CreatedAt:    created.UTC(),
		Sync: domain.SyncState{
			Status:         domain.SyncStatus(r.SyncStatus),
			ExternalID:     r.SyncExternalID,
			ExternalStatus: r.SyncExternalStatus,
		},
	}, nil
}

// Reserve claims rec.EmailKey with SET NX. The claim expires after the
// reservation TTL unless committed.
func (s *Store) Reserve(ctx context.Context, rec *domain.Signup) (signup.Reservation, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(rec.EmailKey), rec.ID, s.reservationTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim email: %w", err)
	}
	if !ok {
		return nil, signup.ErrAlreadyExists
	}
	return &reservation{store: s, rec: *rec}, nil
}

type reservation struct {
	store *Store
	rec   domain.Signup
}

func (r *reservation) Commit(ctx context.Context, st domain.SyncState) error {
	s := r.store
	rec := record{
		ID:                 r.rec.ID,
		Email:              r.rec.Email,
		EmailKey:           r.rec.EmailKey,
		Role:               r.rec.Role,
		FounderStage:       r.rec.FounderStage,
		FundingStage:       r.rec.FundingStage,
		BiggestPain:        r.rec.BiggestPain,
		DetailedPain:       r.rec.DetailedPain,
		CreatedAt:          r.rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		SyncStatus:         string(st.Status),
		SyncExternalID:     st.ExternalID,
		SyncExternalStatus: st.ExternalStatus,
	}

	keys := []string{s.claimKey(rec.EmailKey), s.recordKey(rec.ID), s.indexKey(), s.rolesKey(), s.seqKey()}
	args := append([]interface{}{rec.ID, rec.Role}, rec.fields()...)

	n, err := commitScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("commit signup: %w", err)
	}
	if n == 0 {
		return signup.ErrReservationLost
	}
	return nil
}

func (r *reservation) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.store.client, []string{r.store.claimKey(r.rec.EmailKey)}, r.rec.ID).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Count returns the index size, or the role counter when f.Role is set.
func (s *Store) Count(ctx context.Context, f signup.CountFilter) (int, error) {
	if f.Role == "" {
		n, err := s.client.ZCard(ctx, s.indexKey()).Result()
		if err != nil {
			return 0, fmt.Errorf("count signups: %w", err)
		}
		return int(n), nil
	}

	n, err := s.client.HGet(ctx, s.rolesKey(), f.Role).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count signups by role: %w", err)
	}
	return n, nil
}

// All pages through the index in commit order. Entries are only ever
// appended, so rank-based pages never skip or repeat a record.
func (s *Store) All(ctx context.Context) iter.Seq2[domain.Signup, error] {
	return func(yield func(domain.Signup, error) bool) {
		for start := int64(0); ; start += s.pageSize {
			ids, err := s.client.ZRange(ctx, s.indexKey(), start, start+s.pageSize-1).Result()
			if err != nil {
				yield(domain.Signup{}, fmt.Errorf("list signups: %w", err))
				return
			}
			if len(ids) == 0 {
				return
			}

			pipe := s.client.Pipeline()
			cmds := make([]*redis.MapStringStringCmd, len(ids))
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
			}
			if _, err := pipe.Exec(ctx); err != nil {
				yield(domain.Signup{}, fmt.Errorf("load signups: %w", err))
				return
			}

			for _, cmd := range cmds {
				var rec record
				if err := cmd.Scan(&rec); err != nil {
					yield(domain.Signup{}, fmt.Errorf("scan signup: %w", err))
					return
				}
				out, err := rec.signup()
				if err != nil {
					yield(domain.Signup{}, err)
					return
				}
				if !yield(out, nil) {
					return
				}
			}

			if int64(len(ids)) < s.pageSize {
				return
			}
		}
	}
}

var _ signup.Repository = (*Store)(nil)
