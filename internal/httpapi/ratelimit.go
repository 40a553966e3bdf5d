package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// idleLimiterTTL drops a client's limiter after this long without requests.
const idleLimiterTTL = 10 * time.Minute

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	perSecond rate.Limit
	burst     int
	buckets   *cache.Cache
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		buckets:   cache.New(idleLimiterTTL, idleLimiterTTL),
	}
}

func (c *clientLimiter) get(client string) *rate.Limiter {
	if v, ok := c.buckets.Get(client); ok {
		c.buckets.SetDefault(client, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(c.perSecond, c.burst)
	if err := c.buckets.Add(client, l, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := c.buckets.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// reserve takes a token for client, returning how long the caller would
// have to wait when none is available now.
func (c *clientLimiter) reserve(client string, now time.Time) (ok bool, wait time.Duration) {
	r := c.get(client).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := s.limiter.reserve(clientKey(r), time.Now())
		if !ok {
			w.Header().Set("Retry-After", retryAfter(wait))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Code:      "RATE_LIMITED",
				Message:   "too many requests",
				Retryable: true,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter formats a wait for the Retry-After header, rounded up to whole seconds.
func retryAfter(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
