package weather

import (
	"github.com/levenlabs/go-lflag"
)

// Configured sets up an OWM client from flags.
func Configured() *OWM {
	apiKey := lflag.String("owm-api-key", "", "OpenWeatherMap API key (empty disables outside temperature)")
	cityID := lflag.String("owm-city-id", "", "OpenWeatherMap city id")
	apiURL := lflag.String("owm-api-url", DefaultURL, "OpenWeatherMap current weather endpoint")

	o := NewOWM("", "")

	lflag.Do(func() {
		if *apiKey != "" && *cityID == "" {
			panic("owm-city-id is required when owm-api-key is set")
		}
		o.apiKey = *apiKey
		o.cityID = *cityID
		o.apiURL = *apiURL
	})

	return o
}
