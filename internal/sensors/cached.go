package sensors

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/thermawatch/agent/pkg/types"
)

// DefaultCacheTTL matches the minimum refresh interval of the hardware
// probes; polling faster than this re-serves the previous snapshot.
const DefaultCacheTTL = 2 * time.Second

const snapshotKey = "snapshot"

// Cached wraps a Source so repeated snapshots inside the TTL do not hammer
// smartctl and nvidia-smi.
type Cached struct {
	src   Source
	cache *gocache.Cache
}

// NewCached wraps src with a snapshot cache. A non-positive ttl uses
// DefaultCacheTTL.
func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		src:   src,
		cache: gocache.New(ttl, 10*ttl),
	}
}

func (c *Cached) Snapshot(ctx context.Context) types.Snapshot {
	if v, ok := c.cache.Get(snapshotKey); ok {
		return v.(types.Snapshot).Clone()
	}
	snap := c.src.Snapshot(ctx)
	c.cache.SetDefault(snapshotKey, snap.Clone())
	return snap
}
