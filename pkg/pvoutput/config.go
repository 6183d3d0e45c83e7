package pvoutput

import (
	"net/url"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up a Client from flags.
func Configured() *Client {
	apiKey := lflag.RequiredString("pvoutput-api-key", "PVOutput API key")
	systemID := lflag.RequiredString("pvoutput-system-id", "PVOutput system id")
	apiURL := lflag.String("pvoutput-url", DefaultURL, "PVOutput addstatus endpoint")
	retry := lflag.Duration("pvoutput-retry-interval", defaultRetryInterval, "Wait between failed upload attempts")

	c := NewClient("", "")

	lflag.Do(func() {
		if _, err := url.ParseRequestURI(*apiURL); err != nil {
			panic("pvoutput-url: " + err.Error())
		}
		c.apiKey = *apiKey
		c.systemID = *systemID
		c.url = *apiURL
		c.retryInterval = *retry
	})

	return c
}
