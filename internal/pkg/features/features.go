package features

import (
	"fmt"
	"strings"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//DefaultTrafficThreshold is the congestion value above which traffic counts as heavy
const DefaultTrafficThreshold = 20.0

//Width is the number of columns in a feature vector
const Width = 3

//precipitation labels are matched as case-insensitive substrings of the weather description
var precipitation = []string{"rain", "drizzle", "shower", "snow", "sleet", "hail", "storm"}

//Schema identifies the layout of the vectors a model was trained on
type Schema struct {
	Version int      `json:"version"`
	Columns []string `json:"columns"`
}

//CurrentSchema is the layout produced by Encoder
var CurrentSchema = Schema{Version: 1, Columns: []string{"hour", "weather_flag", "traffic_flag"}}

//Equal reports whether two schemas describe the same vector layout
func (s Schema) Equal(other Schema) bool {
	if s.Version != other.Version || len(s.Columns) != len(other.Columns) {
		return false
	}
	for idx := range s.Columns {
		if s.Columns[idx] != other.Columns[idx] {
			return false
		}
	}
	return true
}

//Vector is the numeric encoding of an hour together with weather and traffic flags
type Vector struct {
	Hour        int
	WeatherFlag int
	TrafficFlag int
}

//Floats returns the vector as model input in schema column order
func (v Vector) Floats() []float64 {
	return []float64{float64(v.Hour), float64(v.WeatherFlag), float64(v.TrafficFlag)}
}

//LiveContext is the narrow view of current conditions the encoder needs
type LiveContext struct {
	Condition  string
	Congestion shiftlog.Traffic
}

//EncodingError is returned for hours or contexts that cannot be encoded
type EncodingError struct {
	Value  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("unable to encode %q: %s", e.Value, e.Reason)
}

//Encoder turns shift records and live context into feature vectors
type Encoder struct {
	TrafficThreshold float64
}

//NewEncoder creates an encoder with the given congestion threshold
func NewEncoder(trafficThreshold float64) Encoder {
	return Encoder{TrafficThreshold: trafficThreshold}
}

//EncodeRecord derives the vector for a logged shift from its start hour and captured context
func (e Encoder) EncodeRecord(r shiftlog.Record) (Vector, error) {
	hour, err := shiftlog.ParseHour(r.StartHour)
	if err != nil {
		return Vector{}, &EncodingError{Value: r.StartHour, Reason: err.Error()}
	}

	return e.EncodeContext(hour, LiveContext{Condition: r.Weather, Congestion: r.Traffic})
}

//EncodeContext derives the vector for a candidate hour under the given conditions
func (e Encoder) EncodeContext(hour int, ctx LiveContext) (Vector, error) {
	if hour < 0 || hour > 23 {
		return Vector{}, &EncodingError{Value: fmt.Sprintf("%d", hour), Reason: "hour is outside 0-23"}
	}

	return Vector{
		Hour:        hour,
		WeatherFlag: e.WeatherFlag(ctx.Condition),
		TrafficFlag: e.TrafficFlag(ctx.Congestion),
	}, nil
}

//WeatherFlag is 1 when the condition describes precipitation
func (e Encoder) WeatherFlag(condition string) int {
	label := strings.ToLower(condition)
	for _, keyword := range precipitation {
		if strings.Contains(label, keyword) {
			return 1
		}
	}
	return 0
}

//TrafficFlag is 1 when the congestion measure is known and above the threshold
func (e Encoder) TrafficFlag(traffic shiftlog.Traffic) int {
	if value, ok := traffic.Value(); ok && value > e.TrafficThreshold {
		return 1
	}
	return 0
}
