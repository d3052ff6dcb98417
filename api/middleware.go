package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"warroom/core/auth"
	"warroom/core/rbac"
)

type requestIDKey struct{}

const (
	requestIDHeader            = "X-Request-ID"
	authFailureBurst           = 10
	authFailureRefill          = time.Minute
	authLimiterTTL             = 10 * time.Minute
	authLimiterCleanupInterval = time.Minute
	authLimiterMaxBuckets      = 10000
)

var anonymousPrincipal = &auth.Principal{Name: "anonymous", Roles: []string{"admin"}}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware keeps a caller supplied X-Request-ID or mints one.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type requestLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*tokenBucket
	capacity        int
	refill          time.Duration
	ttl             time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	maxBuckets      int
}

type tokenBucket struct {
	tokens   int
	last     time.Time
	lastSeen time.Time
}

func newLimiter(capacity int, refill time.Duration) *requestLimiter {
	return &requestLimiter{
		buckets:         make(map[string]*tokenBucket),
		capacity:        capacity,
		refill:          refill,
		ttl:             authLimiterTTL,
		cleanupInterval: authLimiterCleanupInterval,
		maxBuckets:      authLimiterMaxBuckets,
	}
}

// allow consumes one token for key and reports whether one was left.
func (l *requestLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.maybeCleanup(now)
	tb, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &tokenBucket{tokens: l.capacity - 1, last: now, lastSeen: now}
		return true
	}
	tb.lastSeen = now
	l.refillBucket(tb, now)
	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// exhausted reports whether key has no tokens left without consuming one.
func (l *requestLimiter) exhausted(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	tb, ok := l.buckets[key]
	if !ok {
		return false
	}
	l.refillBucket(tb, time.Now())
	return tb.tokens <= 0
}

func (l *requestLimiter) refillBucket(tb *tokenBucket, now time.Time) {
	if now.Sub(tb.last) >= l.refill {
		tb.tokens = l.capacity
		tb.last = now
	}
}

func (l *requestLimiter) maybeCleanup(now time.Time) {
	if l.cleanupInterval <= 0 || now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	l.lastCleanup = now
	if l.ttl > 0 {
		for key, tb := range l.buckets {
			if now.Sub(tb.lastSeen) > l.ttl {
				delete(l.buckets, key)
			}
		}
	}
	for l.maxBuckets > 0 && len(l.buckets) > l.maxBuckets {
		oldestKey := ""
		var oldest time.Time
		for key, tb := range l.buckets {
			if oldestKey == "" || tb.lastSeen.Before(oldest) {
				oldestKey = key
				oldest = tb.lastSeen
			}
		}
		delete(l.buckets, oldestKey)
	}
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("RESP %s %s token=%s status=%d dur=%s bytes=%d req=%s",
			r.Method, r.URL.Path, rec.principal, rec.status, time.Since(start), rec.size, requestID(r.Context()))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status    int
	size      int
	principal string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// withToken resolves the bearer token into a principal. Repeated failures
// from one client are answered with 429 until the bucket refills.
func (s *Server) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg != nil && s.cfg.Auth.Disabled {
			s.servePrincipal(w, r, anonymousPrincipal, next)
			return
		}
		ip := clientIP(r)
		if s.authLimiter.exhausted(ip) {
			http.Error(w, "too many attempts", http.StatusTooManyRequests)
			return
		}
		p, err := s.tokens.Authenticate(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			s.authLimiter.allow(ip)
			s.logger.Printf("AUTH fail %s %s ip=%s", r.Method, r.URL.Path, ip)
			w.Header().Set("WWW-Authenticate", `Bearer realm="warroom"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.servePrincipal(w, r, p, next)
	}
}

func (s *Server) servePrincipal(w http.ResponseWriter, r *http.Request, p *auth.Principal, next http.HandlerFunc) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.principal = p.Name
	}
	next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
}

func (s *Server) requirePermission(perm rbac.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				s.logger.Printf("PERM fail (no token) %s %s need=%s", r.Method, r.URL.Path, perm)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !s.policy.Allowed(p.Roles, perm) {
				s.logger.Printf("PERM fail %s %s token=%s roles=%v need=%s", r.Method, r.URL.Path, p.Name, p.Roles, perm)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	return strings.ToLower(strings.TrimSpace(ip))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
