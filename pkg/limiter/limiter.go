package limiter

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clients idle for longer than this are forgotten.
const defaultIdle = 10 * time.Minute

// Limiter keeps one token bucket per client: a token is added every
// interval and at most burst tokens are stored.
type Limiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	interval  time.Duration
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

func New(interval time.Duration, burst int) *Limiter {
	burst = atLeastOne(burst)
	return &Limiter{
		clients:  make(map[string]*client),
		limit:    rate.Every(interval),
		burst:    burst,
		interval: interval,
		idle:     defaultIdle,
		now:      time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now

	return c.limiter.AllowN(now, 1)
}

// Update changes the rate for every client.
func (l *Limiter) Update(interval time.Duration, burst int) {
	burst = atLeastOne(burst)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit, l.burst, l.interval = rate.Every(interval), burst, interval
	now := l.now()
	for _, c := range l.clients {
		c.limiter.SetLimitAt(now, l.limit)
		c.limiter.SetBurstAt(now, burst)
	}
}

// A zero burst would reject every request.
func atLeastOne(burst int) int {
	if burst < 1 {
		return 1
	}
	return burst
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// sweep drops idle clients, at most once per idle period.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		if now.Sub(c.seen) >= l.idle {
			delete(l.clients, key)
		}
	}
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
// Clients are told apart by remote IP, so put it behind a real IP middleware
// when running behind a proxy.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	f := func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			l.mu.Lock()
			retry := int(math.Ceil(l.interval.Seconds()))
			l.mu.Unlock()
			if retry < 1 {
				retry = 1
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(struct {
				Error string `json:"error"`
			}{Error: "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(f)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
