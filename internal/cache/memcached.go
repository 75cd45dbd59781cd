package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "eligibility:"

// memcached keys may not contain spaces or control characters and are capped at 250 bytes.
const maxKeyLen = 250

// MemcachedStore implements Store using memcached, so several replicas share answers.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key maps arbitrary city names onto a legal memcached key. Keys that would
// exceed maxKeyLen are replaced by a digest of the whole key.
func (c *MemcachedStore) key(k string) string {
	out := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, keyPrefix+k)
	if len(out) > maxKeyLen {
		sum := sha256.Sum256([]byte(k))
		return keyPrefix + hex.EncodeToString(sum[:])
	}
	return out
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedStore) Get(ctx context.Context, key string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Set implements Store.Set.
func (c *MemcachedStore) Set(ctx context.Context, key string, value Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expiration(ttl),
	})
}

// Delete implements Store.Delete. A missing key is not an error.
func (c *MemcachedStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.Delete(c.key(key)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Clear flushes every key on the configured servers.
func (c *MemcachedStore) Clear() error {
	return c.client.FlushAll()
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}

// expiration converts ttl to whole seconds, rounding up so short TTLs never mean "no expiry".
func expiration(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int32((ttl + time.Second - 1) / time.Second)
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}
