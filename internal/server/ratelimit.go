package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/kbrag-go/internal/logging"
)

// Rate-limit classes. An upload embeds a whole document, so uploads draw
// from their own, smaller bucket and cannot starve queries.
const (
	classQuery  = "query"
	classUpload = "upload"
)

const (
	defaultRateLimit       = 10
	defaultRateBurst       = 20
	defaultUploadRateLimit = 0.5
	defaultUploadRateBurst = 3
)

// bucketIdleTTL is how long an unused bucket survives eviction.
const bucketIdleTTL = 5 * time.Minute

// limitSpec is the token-bucket shape of one class.
type limitSpec struct {
	rps   rate.Limit
	burst int
}

type bucketKey struct {
	class string
	ip    string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces per-IP token buckets, one per (class, IP) pair.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	specs   map[string]limitSpec
	now     func() time.Time
}

// newRateLimiter starts the eviction loop; call the returned func to stop it.
func newRateLimiter(specs map[string]limitSpec) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[bucketKey]*bucket),
		specs:   specs,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// limitsFromConfig maps the server config onto the two classes.
func limitsFromConfig(cfg *Config) map[string]limitSpec {
	return map[string]limitSpec{
		classQuery:  {rps: rate.Limit(cfg.RateLimit), burst: cfg.RateBurst},
		classUpload: {rps: rate.Limit(cfg.UploadRateLimit), burst: cfg.UploadRateBurst},
	}
}

func (rl *rateLimiter) bucketFor(class, ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{class: class, ip: ip}
	b, ok := rl.buckets[key]
	if !ok {
		spec := rl.specs[class]
		b = &bucket{limiter: rate.NewLimiter(spec.rps, spec.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-bucketIdleTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// reserve takes a token from the caller's bucket. When none is available it
// returns false and how long until one will be.
func (rl *rateLimiter) reserve(class, ip string) (bool, time.Duration) {
	lim := rl.bucketFor(class, ip)
	now := rl.now()

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// limit wraps next with the class's bucket. Rejected requests get 429 and a
// Retry-After in whole seconds.
func (rl *rateLimiter) limit(class string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := rl.reserve(class, ip)
		if !ok {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("class", class),
				slog.Duration("retry_after", wait),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeError(r.Context(), w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
