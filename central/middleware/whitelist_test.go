package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyWhitelistAllowsEveryone(t *testing.T) {
	w := NewWhitelist(nil)
	assert.True(t, w.Allow(net.ParseIP("203.0.113.9")))
}

func TestWhitelistMatchesCIDRs(t *testing.T) {
	w := NewWhitelist([]string{"10.0.0.0/8", "192.168.1.0/24"})

	assert.True(t, w.Allow(net.ParseIP("10.1.2.3")))
	assert.True(t, w.Allow(net.ParseIP("192.168.1.77")))
	assert.False(t, w.Allow(net.ParseIP("192.168.2.1")))
	assert.False(t, w.Allow(net.ParseIP("203.0.113.9")))
	assert.False(t, w.Allow(nil))
}

func TestUnparsableCIDRsAreSkipped(t *testing.T) {
	w := NewWhitelist([]string{"not-a-cidr", "10.0.0.0/8"})
	assert.True(t, w.Allow(net.ParseIP("10.1.2.3")))
	assert.False(t, w.Allow(net.ParseIP("203.0.113.9")))
}

func TestWrapRejectsWithForbidden(t *testing.T) {
	w := NewWhitelist([]string{"10.0.0.0/8"})
	handler := w.Wrap(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/write", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/write", nil)
	req.RemoteAddr = "10.3.4.5:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
