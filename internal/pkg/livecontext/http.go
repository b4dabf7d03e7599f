package livecontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

const (
	//DefaultOpenWeatherURL is the current conditions endpoint
	DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	//DefaultDistanceMatrixURL is the Google distance matrix endpoint
	DefaultDistanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"
	//DefaultIPInfoURL is the IP geolocation endpoint
	DefaultIPInfoURL = "https://ipinfo.io/json"
)

func getJSON(ctx context.Context, client *http.Client, endpoint string, query url.Values, dst interface{}) error {
	if query != nil {
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s responded with status %d", req.URL.Host, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

//OpenWeather reads current conditions from the OpenWeather API in imperial units
type OpenWeather struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type openWeatherResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

//Current returns the condition label, temperature and wind speed at loc
func (o *OpenWeather) Current(ctx context.Context, loc Location) (string, float64, float64, error) {
	query := url.Values{}
	if loc.HasCoordinates() {
		query.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
		query.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	} else if loc.PostalCode != "" {
		query.Set("zip", loc.PostalCode)
	} else {
		return "", 0, 0, errors.New("location has neither coordinates nor a postal code")
	}
	query.Set("appid", o.APIKey)
	query.Set("units", "imperial")

	body := openWeatherResponse{}
	if err := getJSON(ctx, o.Client, o.BaseURL, query, &body); err != nil {
		return "", 0, 0, fmt.Errorf("weather lookup failed: %w", err)
	}

	if len(body.Weather) == 0 {
		return "", 0, 0, errors.New("weather lookup returned no conditions")
	}

	return body.Weather[0].Description, body.Main.Temp, body.Wind.Speed, nil
}

//DistanceMatrix estimates congestion as the minutes of in-traffic travel time reported by the
//Google distance matrix for a round trip from the location to itself
type DistanceMatrix struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status            string `json:"status"`
			DurationInTraffic *struct {
				Value float64 `json:"value"`
			} `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}

//TravelTime returns the congestion measure, or unknown when the response carries none
func (d *DistanceMatrix) TravelTime(ctx context.Context, loc Location) (shiftlog.Traffic, error) {
	origin := loc.String()
	if origin == "" {
		return shiftlog.UnknownTraffic, errors.New("location has neither coordinates nor a postal code")
	}

	query := url.Values{}
	query.Set("origins", origin)
	query.Set("destinations", origin)
	query.Set("departure_time", "now")
	query.Set("key", d.APIKey)

	body := distanceMatrixResponse{}
	if err := getJSON(ctx, d.Client, d.BaseURL, query, &body); err != nil {
		return shiftlog.UnknownTraffic, fmt.Errorf("traffic lookup failed: %w", err)
	}

	if len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 || body.Rows[0].Elements[0].DurationInTraffic == nil {
		return shiftlog.UnknownTraffic, nil
	}

	return shiftlog.KnownTraffic(body.Rows[0].Elements[0].DurationInTraffic.Value / 60), nil
}

//HTTPProvider combines a weather source with an optional traffic source. A failing traffic
//lookup yields unknown congestion, a failing weather lookup fails the fetch.
type HTTPProvider struct {
	Weather *OpenWeather
	Traffic *DistanceMatrix
}

//NewHTTPProvider creates a provider against the public endpoints. Traffic is only queried when a
//maps key is configured.
func NewHTTPProvider(weatherKey, mapsKey string, timeout time.Duration) *HTTPProvider {
	client := &http.Client{Timeout: timeout}

	p := &HTTPProvider{
		Weather: &OpenWeather{APIKey: weatherKey, BaseURL: DefaultOpenWeatherURL, Client: client},
	}
	if mapsKey != "" {
		p.Traffic = &DistanceMatrix{APIKey: mapsKey, BaseURL: DefaultDistanceMatrixURL, Client: client}
	}

	return p
}

//Fetch implements Provider
func (p *HTTPProvider) Fetch(ctx context.Context, loc Location) (Snapshot, error) {
	condition, temp, wind, err := p.Weather.Current(ctx, loc)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Condition: condition, TemperatureF: temp, WindSpeed: wind, Congestion: shiftlog.UnknownTraffic}

	if p.Traffic != nil {
		if traffic, err := p.Traffic.TravelTime(ctx, loc); err == nil {
			snapshot.Congestion = traffic
		}
	}

	return snapshot, nil
}

//IPInfo locates the caller from their public IP address
type IPInfo struct {
	BaseURL string
	Client  *http.Client
}

//NewIPInfo creates a locator against ipinfo.io
func NewIPInfo(timeout time.Duration) *IPInfo {
	return &IPInfo{BaseURL: DefaultIPInfoURL, Client: &http.Client{Timeout: timeout}}
}

//Locate implements Locator
func (i *IPInfo) Locate(ctx context.Context) (Location, error) {
	body := struct {
		City   string `json:"city"`
		Loc    string `json:"loc"`
		Postal string `json:"postal"`
	}{}

	if err := getJSON(ctx, i.Client, i.BaseURL, nil, &body); err != nil {
		return Location{}, fmt.Errorf("location lookup failed: %w", err)
	}

	parts := strings.Split(body.Loc, ",")
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("location lookup returned malformed coordinates %q", body.Loc)
	}

	lat, laterr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonerr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if laterr != nil || lonerr != nil {
		return Location{}, fmt.Errorf("location lookup returned malformed coordinates %q", body.Loc)
	}

	city := body.City
	if city == "" {
		city = "Unknown City"
	}

	return Location{City: city, Latitude: lat, Longitude: lon, PostalCode: body.Postal}, nil
}
