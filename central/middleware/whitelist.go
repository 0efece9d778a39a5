package middleware

import (
	"net"
	"net/http"

	"k8s.io/klog/v2"
)

// Whitelist restricts handlers to requests whose remote IP falls inside
// one of the configured CIDRs. An empty list allows everyone.
type Whitelist struct {
	nets []*net.IPNet
}

func NewWhitelist(cidrs []string) *Whitelist {
	w := &Whitelist{}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			klog.Warningf("Skipping unparsable whitelist CIDR %q: %v", c, err)
			continue
		}
		w.nets = append(w.nets, n)
	}
	return w
}

func (w *Whitelist) Allow(ip net.IP) bool {
	if len(w.nets) == 0 {
		return true
	}
	if ip == nil {
		return false
	}
	for _, n := range w.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Wrap gates next behind the whitelist with a 403 on rejection.
func (w *Whitelist) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ipStr, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ipStr = r.RemoteAddr
		}
		if !w.Allow(net.ParseIP(ipStr)) {
			http.Error(rw, "IP not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}
