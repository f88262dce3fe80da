package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// pooledConn is one bound directory connection tracked by the pool.
type pooledConn struct {
	raw      *ldap.Conn
	lastUsed time.Time
}

// connPool keeps a small set of bound connections for reuse. Connections are
// validated on checkout; stale or unhealthy ones are discarded and replaced.
type connPool struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	idle   []*pooledConn
	closed bool
}

func newConnPool(cfg Config, logger *slog.Logger) *connPool {
	return &connPool{cfg: cfg, logger: logger}
}

// get returns a healthy connection, reusing an idle one when possible.
func (p *connPool) get(ctx context.Context) (*pooledConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("connection pool is closed")
	}
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.isHealthy(conn) {
			p.mu.Unlock()
			return conn, nil
		}
		conn.raw.Close()
	}
	p.mu.Unlock()

	return p.dial(ctx)
}

// put returns a connection to the pool, closing it when the pool is full or
// already shut down.
func (p *connPool) put(conn *pooledConn) {
	conn.lastUsed = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.cfg.MaxConnections {
		conn.raw.Close()
		return
	}
	p.idle = append(p.idle, conn)
}

// discard drops a connection that failed mid-operation.
func (p *connPool) discard(conn *pooledConn) {
	conn.raw.Close()
}

func (p *connPool) isHealthy(conn *pooledConn) bool {
	if conn.raw.IsClosing() {
		return false
	}
	return time.Since(conn.lastUsed) < p.cfg.MaxIdleTime
}

// dial opens and binds a fresh connection, trying each configured address in
// order.
func (p *connPool) dial(ctx context.Context) (*pooledConn, error) {
	var lastErr error

	for _, addr := range p.cfg.Addresses {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: p.cfg.DialTimeout})}
		if p.cfg.UseTLS && p.cfg.TLSConfig != nil {
			opts = append(opts, ldap.DialWithTLSConfig(p.cfg.TLSConfig))
		}

		raw, err := ldap.DialURL(addr, opts...)
		if err != nil {
			p.logger.Warn("directory dial failed",
				"address", addr,
				"error", err)
			lastErr = err
			continue
		}

		if p.cfg.BindDN != "" {
			if err := raw.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
				raw.Close()
				p.logger.Warn("directory bind failed",
					"address", addr,
					"bind_dn", p.cfg.BindDN,
					"error", err)
				lastErr = err
				continue
			}
		}

		p.logger.Debug("directory connection established", "address", addr)
		return &pooledConn{raw: raw, lastUsed: time.Now()}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no directory addresses configured")
	}
	return nil, WrapLDAP("connect", "", lastErr)
}

// close shuts the pool down and closes every idle connection.
func (p *connPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, conn := range p.idle {
		conn.raw.Close()
	}
	p.idle = nil
}
