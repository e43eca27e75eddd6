// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// ipLimiter applies a token bucket per remote address and periodically
// evicts idle buckets.
type ipLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byIP  map[string]*limiterEntry
	hits  uint64
	clock func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter returns nil when limiting is disabled.
func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &ipLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		byIP:  make(map[string]*limiterEntry),
		clock: time.Now,
	}
}

func (l *ipLimiter) allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byIP[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byIP[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-limiterIdleTTL)
		for k, v := range l.byIP {
			if v.lastSeen.Before(cutoff) {
				delete(l.byIP, k)
			}
		}
	}
	return allowed
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
