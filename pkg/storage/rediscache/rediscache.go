// Package rediscache wraps a storage.Driver with a Redis read-through cache
// for profile reads. The wrapped driver stays the system of record: every
// write goes to it first and then fences the cached entry with a short-lived
// tombstone. Reads only fill an absent key, so a load that raced a write
// cannot put the older profile back.
package rediscache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

const (
	defaultNamespace = "rapport"
	defaultTTL       = 5 * time.Minute
	defaultFenceTTL  = 5 * time.Second
)

var tombstone = []byte("-")

// Options configures the cache.
type Options struct {
	Addr string
	TTL  time.Duration

	// FenceTTL is how long a write keeps reads from filling the entry.
	FenceTTL time.Duration

	// Namespace prefixes every key. Defaults to "rapport".
	Namespace string
}

// Driver is a storage.Driver whose profile reads go through Redis.
type Driver struct {
	storage.Driver

	rdb    *goredis.Client
	ttl    time.Duration
	fence  time.Duration
	prefix string
	group  singleflight.Group
	logger *slog.Logger
}

// New connects to Redis and wraps next.
func New(ctx context.Context, next storage.Driver, opts Options, logger *slog.Logger) (*Driver, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return Wrap(next, rdb, opts, logger), nil
}

// Wrap builds a Driver around an existing client.
func Wrap(next storage.Driver, rdb *goredis.Client, opts Options, logger *slog.Logger) *Driver {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	fence := opts.FenceTTL
	if fence <= 0 {
		fence = defaultFenceTTL
	}
	ns := opts.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &Driver{
		Driver: next,
		rdb:    rdb,
		ttl:    ttl,
		fence:  fence,
		prefix: ns + ":profile:",
		logger: logger,
	}
}

func (d *Driver) GetProfile(ctx context.Context, userID string) (*social.UserProfile, error) {
	raw, err := d.rdb.Get(ctx, d.prefix+userID).Bytes()
	switch {
	case err == nil && bytes.Equal(raw, tombstone):
	case err == nil:
		var p social.UserProfile
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
		d.logger.Warn("discarding unreadable cached profile", "user_id", userID)

	case !errors.Is(err, goredis.Nil):
		d.logger.Warn("profile cache read failed", "user_id", userID, "error", err)
	}

	v, err, _ := d.group.Do(userID, func() (any, error) {
		p, err := d.Driver.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		d.store(ctx, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*social.UserProfile).Clone(), nil
}

func (d *Driver) PutProfile(ctx context.Context, p *social.UserProfile) error {
	if err := d.Driver.PutProfile(ctx, p); err != nil {
		return err
	}
	d.fenceOff(ctx, p.UserID)
	return nil
}

func (d *Driver) ReplaceDescription(ctx context.Context, userID, description string, embedding []float32, at time.Time) error {
	if err := d.Driver.ReplaceDescription(ctx, userID, description, embedding, at); err != nil {
		return err
	}
	d.fenceOff(ctx, userID)
	return nil
}

func (d *Driver) AddMember(ctx context.Context, groupID, userID string) error {
	if err := d.Driver.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	d.fenceOff(ctx, userID)
	return nil
}

// Close closes the Redis client and the wrapped driver.
func (d *Driver) Close() error {
	return errors.Join(d.rdb.Close(), d.Driver.Close())
}

// store fills the entry only when it is absent, so neither a fence nor a
// newer profile is overwritten.
func (d *Driver) store(ctx context.Context, p *social.UserProfile) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := d.rdb.SetNX(ctx, d.prefix+p.UserID, raw, d.ttl).Err(); err != nil {
		d.logger.Warn("profile cache write failed", "user_id", p.UserID, "error", err)
	}
}

// fenceOff tombstones the entry and drops any in-flight load for userID so
// later reads start a fresh one.
func (d *Driver) fenceOff(ctx context.Context, userID string) {
	d.group.Forget(userID)
	if err := d.rdb.Set(ctx, d.prefix+userID, tombstone, d.fence).Err(); err != nil {
		d.logger.Warn("profile cache fence failed", "user_id", userID, "error", err)
	}
}
