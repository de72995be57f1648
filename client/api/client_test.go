package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/pkg/apierror"
)

func TestSaveScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/events/ev1/entries/en1/scores", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			Values scoredomain.Values `json:"values"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Values["Stage"].IsNull())

		apierror.WriteJSON(w, http.StatusOK, map[string]any{
			"entryId": "en1",
			"status":  "incomplete",
			"total":   4,
			"values":  body.Values,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	res, err := c.SaveScores(context.Background(), "ev1", "en1", scoredomain.Values{"Costume": scoredomain.Of(4), "Stage": scoredomain.Unanswered()})
	require.NoError(t, err)
	assert.Equal(t, scoredomain.StatusIncomplete, res.Status)
	assert.Equal(t, 4, res.Total)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		code       string
		retryable  bool
		validation bool
	}{
		{name: "validation", status: http.StatusUnprocessableEntity, code: apierror.CodeValidationFailed, validation: true},
		{name: "not found", status: http.StatusNotFound, code: apierror.CodeNotFound},
		{name: "server error", status: http.StatusInternalServerError, code: apierror.CodeInternal, retryable: true},
		{name: "bad gateway without body", status: http.StatusBadGateway, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == "" {
					w.WriteHeader(tt.status)
					return
				}
				apierror.Write(w, tt.status, tt.code, "nope")
			}))
			defer srv.Close()

			_, err := New(srv.URL).SaveScores(context.Background(), "ev", "en", nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.validation, IsValidation(err))
		})
	}
}

func TestTransportErrorsAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).SaveScores(context.Background(), "ev", "en", nil)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.True(t, IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(url).SaveScores(ctx, "ev", "en", nil)
	assert.False(t, IsRetryable(err))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ping" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).Ping(context.Background()))
}

func TestPingTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := New(srv.URL, WithProbeTimeout(50*time.Millisecond)).Ping(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIdentityHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "judge-3", r.Header.Get("X-Judge-ID"))
		assert.Equal(t, "coordinator", r.Header.Get("X-Role"))
		apierror.WriteJSON(w, http.StatusOK, map[string]any{"changes": []any{}})
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithIdentityHeaders("judge-3", "coordinator")).Reposition(context.Background(), "en", 2)
	require.NoError(t, err)
}
