package netx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIClient_TimesOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := NewAPIClient(50 * time.Millisecond)
	_, err := c.Get(ts.URL)
	require.Error(t, err)
}

func TestNewTransferClient_LongTimeout(t *testing.T) {
	c := NewTransferClient(30 * time.Minute)
	assert.Equal(t, 30*time.Minute, c.Timeout)
}

func TestStatusError_IncludesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	e := StatusError(resp)
	require.Error(t, e)
	assert.True(t, strings.Contains(e.Error(), "418"))
	assert.True(t, strings.Contains(e.Error(), "nope"))
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(204))
	assert.False(t, IsSuccess(302))
	assert.False(t, IsSuccess(500))
}
