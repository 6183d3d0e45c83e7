// Package weather reads the outside temperature from OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pvrelay/pvrelay/pkg/common"
	"github.com/pvrelay/pvrelay/pkg/log"
)

// DefaultURL is the current-weather endpoint.
const DefaultURL = "https://api.openweathermap.org/data/2.5/weather"

// OWM fetches current conditions for one city.
type OWM struct {
	client *http.Client
	apiURL string
	apiKey string
	cityID string
}

// NewOWM returns an OWM client. An empty apiKey disables it.
func NewOWM(apiKey, cityID string) *OWM {
	return &OWM{
		client: common.HTTPClient(10 * time.Second),
		apiURL: DefaultURL,
		apiKey: apiKey,
		cityID: cityID,
	}
}

type currentResponse struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

// CurrentTemperature returns the outside temperature in °C. It returns false
// when disabled or when the lookup fails for any reason.
func (o *OWM) CurrentTemperature(ctx context.Context) (float64, bool) {
	if o == nil || o.apiKey == "" {
		return 0, false
	}
	temp, err := o.fetch(ctx)
	if err != nil {
		log.Ctx(ctx).DebugContext(ctx, "failed to get outside temperature", slog.Any("error", err))
		return 0, false
	}
	return temp, true
}

func (o *OWM) fetch(ctx context.Context) (float64, error) {
	u, err := url.Parse(o.apiURL)
	if err != nil {
		return 0, err
	}
	u.RawQuery = url.Values{
		"id":    {o.cityID},
		"appid": {o.apiKey},
		"units": {"metric"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var res currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, fmt.Errorf("failed to decode weather: %w", err)
	}
	if res.Main.Temp == nil {
		return 0, fmt.Errorf("no temperature in response")
	}
	return *res.Main.Temp, nil
}
