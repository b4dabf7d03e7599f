package livecontext

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//Location is a hint for where the driver is. Coordinates win over a postal code when both are set.
type Location struct {
	City       string  `json:"city,omitempty"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	PostalCode string  `json:"postalCode,omitempty"`
}

//HasCoordinates reports whether the location carries a coordinate pair
func (l Location) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

func (l Location) String() string {
	if l.HasCoordinates() {
		return fmt.Sprintf("%f,%f", l.Latitude, l.Longitude)
	}
	return l.PostalCode
}

//Snapshot is the current weather and traffic around a location
type Snapshot struct {
	Condition    string
	TemperatureF float64
	WindSpeed    float64
	Congestion   shiftlog.Traffic
}

//Features narrows a snapshot down to what the feature encoder consumes
func (s Snapshot) Features() features.LiveContext {
	return features.LiveContext{Condition: s.Condition, Congestion: s.Congestion}
}

//Provider fetches live conditions for a location
type Provider interface {
	Fetch(ctx context.Context, loc Location) (Snapshot, error)
}

//Locator guesses the caller's location
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

//Neutral is the context used when no provider could be reached. It encodes to zero flags.
var Neutral = Snapshot{Condition: "", Congestion: shiftlog.UnknownTraffic}

//Safe fetches live conditions and downgrades any failure, or a nil provider, to Neutral
func Safe(ctx context.Context, p Provider, loc Location) Snapshot {
	if p == nil {
		return Neutral
	}

	snapshot, err := p.Fetch(ctx, loc)
	if err != nil {
		log.WithField("location", loc.String()).Warnf("Live context unavailable, using neutral defaults: %s", err.Error())
		return Neutral
	}

	return snapshot
}
