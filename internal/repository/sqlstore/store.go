// Package sqlstore implements the signup and status repositories on
// database/sql. SQL is written with ? placeholders and rebound by the
// Dialect, so the same queries run on Postgres and SQLite.
//
// Email uniqueness comes from the UNIQUE index on email_key. A reserved
// row is inserted with record_state = 'reserved' and only becomes visible
// to Count and All once Commit flips it to 'committed'.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between SQL engines.
type Dialect interface {
	// Name identifies the engine in health reports and errors.
	Name() string
	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder(n int) string
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation(err error) bool
	// TimeArg converts t to the value stored in timestamp columns.
	TimeArg(t time.Time) any
}

// Store is a database/sql backed repository. Safe for concurrent use.
type Store struct {
	db             *sql.DB
	dialect        Dialect
	reservationTTL time.Duration
	clock          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithReservationTTL sets how long an uncommitted reservation blocks its
// email before another Reserve may reclaim it. Non-positive values keep
// the default.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.reservationTTL = d
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New wraps an open database handle. The caller keeps ownership of db
// until Close is called on the Store.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, reservationTTL: 30 * time.Second, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Name returns the dialect name.
func (s *Store) Name() string { return s.dialect.Name() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rebinds ? placeholders for the dialect.
func (s *Store) q(query string) string {
	return Rebind(query, s.dialect.Placeholder)
}

// Rebind replaces each ? in query with placeholder(n).
func Rebind(query string, placeholder func(n int) string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuestionPlaceholder is the placeholder style used by SQLite.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder is the placeholder style used by Postgres.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// timeValue scans timestamp columns stored either natively or as unix
// milliseconds.
type timeValue struct{ t time.Time }

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.t = time.Time{}
	case time.Time:
		v.t = x.UTC()
	case int64:
		v.t = time.UnixMilli(x).UTC()
	case []byte:
		return v.parse(string(x))
	case string:
		return v.parse(x)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (v *timeValue) parse(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		v.t = time.UnixMilli(ms).UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	v.t = t.UTC()
	return nil
}
