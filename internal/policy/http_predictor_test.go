package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPredictor_RoundTrip(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"action": 2}`))
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPPredictorConfig{URL: srv.URL, InputDim: 6})
	l, err := NewLearned(p, FeaturesRaw, OutputDiscrete)
	require.NoError(t, err)

	frac, err := l.Decide(context.Background(), testZone, testHub)
	require.NoError(t, err)
	assert.Equal(t, 0.6, frac)
	assert.Equal(t, FeaturesRaw.Features(testZone, testHub), got.Features)
}

func TestHTTPPredictor_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		},
		"missing action": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"score": 1}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			p := NewHTTPPredictor(HTTPPredictorConfig{URL: srv.URL, InputDim: 6})
			_, err := p.Predict(context.Background(), make([]float64, 6))
			assert.ErrorIs(t, err, ErrPolicyUnavailable)
		})
	}
}

func TestHTTPPredictor_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewHTTPPredictor(HTTPPredictorConfig{URL: url, InputDim: 6})
	_, err := p.Predict(context.Background(), make([]float64, 6))
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}

func TestHTTPPredictor_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"action": 0.5}`))
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPPredictorConfig{URL: srv.URL, InputDim: 6, MaxPerMin: 2})
	for i := 0; i < 2; i++ {
		_, err := p.Predict(context.Background(), make([]float64, 6))
		require.NoError(t, err)
	}
	_, err := p.Predict(context.Background(), make([]float64, 6))
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}

func TestHTTPPredictor_DisabledWithoutURL(t *testing.T) {
	p := NewHTTPPredictor(HTTPPredictorConfig{})
	assert.Nil(t, p)
	assert.False(t, p.Enabled())
	_, err := p.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}
