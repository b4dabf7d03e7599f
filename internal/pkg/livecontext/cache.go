package livecontext

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/geo/s2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//cellLevel 13 cells are roughly one square kilometre, close enough to share conditions
const cellLevel = 13

//CachedProvider memoizes another provider's snapshots in redis
type CachedProvider struct {
	next   Provider
	client redis.Cmdable
	ttl    time.Duration
}

//NewCachedProvider wraps next with a redis cache whose entries expire after ttl
func NewCachedProvider(next Provider, client redis.Cmdable, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, client: client, ttl: ttl}
}

type cachedSnapshot struct {
	Condition    string   `json:"condition"`
	TemperatureF float64  `json:"temperatureF"`
	WindSpeed    float64  `json:"windSpeed"`
	Congestion   *float64 `json:"congestion"`
}

//CacheKey buckets a location so that nearby lookups hit the same entry
func CacheKey(loc Location) string {
	if !loc.HasCoordinates() {
		return "shiftadvisor:context:zip:" + loc.PostalCode
	}

	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)).Parent(cellLevel)
	return "shiftadvisor:context:cell:" + cell.ToToken()
}

//Fetch implements Provider. Cache failures fall through to the wrapped provider.
func (c *CachedProvider) Fetch(ctx context.Context, loc Location) (Snapshot, error) {
	key := CacheKey(loc)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		cached := cachedSnapshot{}
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.snapshot(), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("Context cache lookup failed: %s", err.Error())
	}

	snapshot, err := c.next.Fetch(ctx, loc)
	if err != nil {
		return Snapshot{}, err
	}

	if encoded, err := json.Marshal(newCachedSnapshot(snapshot)); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			log.Warnf("Context cache store failed: %s", err.Error())
		}
	}

	return snapshot, nil
}

func newCachedSnapshot(s Snapshot) cachedSnapshot {
	cached := cachedSnapshot{Condition: s.Condition, TemperatureF: s.TemperatureF, WindSpeed: s.WindSpeed}
	if v, ok := s.Congestion.Value(); ok {
		cached.Congestion = &v
	}
	return cached
}

func (c cachedSnapshot) snapshot() Snapshot {
	s := Snapshot{Condition: c.Condition, TemperatureF: c.TemperatureF, WindSpeed: c.WindSpeed, Congestion: shiftlog.UnknownTraffic}
	if c.Congestion != nil {
		s.Congestion = shiftlog.KnownTraffic(*c.Congestion)
	}
	return s
}
