package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentTemperature(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "2643743", q.Get("id"))
			assert.Equal(t, "key", q.Get("appid"))
			assert.Equal(t, "metric", q.Get("units"))
			w.Write([]byte(`{"main":{"temp":14.62,"humidity":71},"name":"London"}`))
		}))
		defer ts.Close()

		o := NewOWM("key", "2643743")
		o.apiURL = ts.URL
		temp, ok := o.CurrentTemperature(ctx)
		require.True(t, ok)
		assert.Equal(t, 14.62, temp)
	})

	t.Run("Disabled", func(t *testing.T) {
		_, ok := NewOWM("", "1").CurrentTemperature(ctx)
		assert.False(t, ok)

		var o *OWM
		_, ok = o.CurrentTemperature(ctx)
		assert.False(t, ok)
	})

	t.Run("Failures", func(t *testing.T) {
		for name, handler := range map[string]http.HandlerFunc{
			"Status": func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			"Invalid": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			"NoTemp": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"main":{}}`))
			},
		} {
			t.Run(name, func(t *testing.T) {
				ts := httptest.NewServer(handler)
				defer ts.Close()

				o := NewOWM("key", "1")
				o.apiURL = ts.URL
				_, ok := o.CurrentTemperature(ctx)
				assert.False(t, ok)
			})
		}
	})
}
