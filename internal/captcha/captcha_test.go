package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *HTTPVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPVerifier(Config{VerifyURL: srv.URL, Secret: "s3cret", Timeout: time.Second, RetryMax: 2})
}

func TestHTTPVerifier(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"Accepted", `{"success":true}`, true, false},
		{"Rejected", `{"success":false,"error-codes":["invalid-input-response"]}`, false, false},
		{"Garbage", `not json`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
				assert.Equal(t, "tok", r.PostForm.Get("response"))
				assert.Equal(t, "10.0.0.1", r.PostForm.Get("remoteip"))
				w.Write([]byte(tt.body))
			})

			ok, err := v.Verify(context.Background(), "tok", "10.0.0.1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestHTTPVerifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	v := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true}`))
	})

	ok, err := v.Verify(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPVerifierEmptyToken(t *testing.T) {
	v := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("siteverify should not be called without a token")
	})

	ok, err := v.Verify(context.Background(), "  ", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisabled(t *testing.T) {
	ok, err := Disabled{}.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}
