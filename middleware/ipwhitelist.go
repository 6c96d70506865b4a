package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/friendhub/server/api/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ParseAllowList turns single addresses and CIDR ranges into prefixes.
// Entries that parse as neither are returned in rejected.
func ParseAllowList(entries []string) (prefixes []netip.Prefix, rejected []string) {
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			a = a.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		rejected = append(rejected, raw)
	}
	return prefixes, rejected
}

// IPWhitelist admits only clients whose address falls in entries (plain IPs
// or CIDR ranges). An empty list admits everyone. Unparseable entries are
// logged once and ignored; if none remain, every client is refused.
func IPWhitelist(entries []string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	prefixes, rejected := ParseAllowList(entries)
	for _, e := range rejected {
		log.Warn("ignoring invalid allow-list entry", zap.String("entry", e))
	}
	open := len(prefixes) == 0 && len(rejected) == 0

	return func(c *gin.Context) {
		if open {
			c.Next()
			return
		}
		ip := c.ClientIP()
		addr, err := netip.ParseAddr(ip)
		if err == nil {
			addr = addr.Unmap()
			for _, p := range prefixes {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		log.Debug("client not in allow-list",
			zap.String("client_ip", ip),
			zap.String("path", c.Request.URL.Path),
			zap.String("trace_id", GetTraceID(c)))
		response.Error(c, http.StatusForbidden, "access denied", "forbidden")
	}
}
