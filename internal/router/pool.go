package router

import (
	"sort"
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
)

// Connection health limits.
const (
	MaxConnectionIdle     = 5 * time.Minute
	MaxConnectionRequests = 1000
)

// Connection is the bookkeeping record of a pooled server connection. No
// socket is held; the agent runtime owns real connections.
type Connection struct {
	Server    string    `json:"server"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
	Requests  int64     `json:"requests"`
}

// Healthy reports whether the record can keep serving at now.
func (c Connection) Healthy(now time.Time) bool {
	return now.Sub(c.LastUsed) <= MaxConnectionIdle && c.Requests < MaxConnectionRequests
}

// PoolStats summarises the pool.
type PoolStats struct {
	Connections   int   `json:"connections"`
	Healthy       int   `json:"healthy"`
	Recycled      int64 `json:"recycled"`
	Evicted       int64 `json:"evicted"`
	TotalRequests int64 `json:"totalRequests"`
}

// Pool keeps one connection record per server. Unhealthy records are
// recycled on acquire; the least recently used record is evicted when
// the pool is full.
type Pool struct {
	maxSize int
	clock   clock.Clock

	mu       sync.Mutex
	conns    map[string]*Connection
	recycled int64
	evicted  int64
	requests int64
}

// NewPool creates a pool bounded to maxSize servers; 0 means unbounded.
func NewPool(maxSize int, clk clock.Clock) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	return &Pool{
		maxSize: maxSize,
		clock:   clk,
		conns:   make(map[string]*Connection),
	}
}

// Acquire records one request against server and returns the record
// after the request.
func (p *Pool) Acquire(server string) Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	c, ok := p.conns[server]
	if ok && !c.Healthy(now) {
		logger.KV(xlog.DEBUG,
			"status", "connection_recycled",
			"server", server,
			"requests", c.Requests,
			"idle", now.Sub(c.LastUsed).String())
		p.recycled++
		ok = false
	}
	if !ok {
		if _, exists := p.conns[server]; !exists && p.maxSize > 0 && len(p.conns) >= p.maxSize {
			p.evictLRU()
		}
		c = &Connection{Server: server, CreatedAt: now}
		p.conns[server] = c
	}
	c.LastUsed = now
	c.Requests++
	p.requests++
	return *c
}

func (p *Pool) evictLRU() {
	var oldest *Connection
	for _, c := range p.conns {
		if oldest == nil || c.LastUsed.Before(oldest.LastUsed) {
			oldest = c
		}
	}
	if oldest != nil {
		delete(p.conns, oldest.Server)
		p.evicted++
	}
}

// Healthy reports whether server has a healthy record.
func (p *Pool) Healthy(server string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[server]
	return ok && c.Healthy(p.clock.Now())
}

// Connections returns copies of all records sorted by server.
func (p *Pool) Connections() []Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Connection, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Server < out[j].Server })
	return out
}

// Stats returns pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	st := PoolStats{
		Connections:   len(p.conns),
		Recycled:      p.recycled,
		Evicted:       p.evicted,
		TotalRequests: p.requests,
	}
	for _, c := range p.conns {
		if c.Healthy(now) {
			st.Healthy++
		}
	}
	return st
}
