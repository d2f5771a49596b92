package smtpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/logger"
)

// maxConnLife bounds how long a pooled connection may sit unused before the
// cleaner retires it, mirroring modfin-brev/smtpx/pool's idle-eviction
// design (there tied to a 15s window; here tied to the relay's own
// keepalive tolerance since a transactional relay is long-lived).
const maxConnLife = 2 * time.Minute

// pool holds one lazily-dialed connection slot per upstream relay address.
// A transactional sender talks to a single configured relay, so unlike
// modfin-brev's per-recipient-domain fan-out this pool carries only one
// entry in practice — the map shape is kept for the same reconnect/cleanup
// machinery and to allow multiple relay addresses without a redesign.
type pool struct {
	cfg *config.SMTPConfig
	log logger.Logger

	mu          sync.Mutex
	connections map[string]*pooledConn
	cleanerStop chan struct{}
}

type pooledConn struct {
	mu          sync.Mutex
	addr        string
	client      *smtp.Client
	lastUsed    time.Time
}

func newPool(cfg *config.SMTPConfig, log logger.Logger) *pool {
	p := &pool{
		cfg:         cfg,
		log:         log,
		connections: make(map[string]*pooledConn),
		cleanerStop: make(chan struct{}),
	}
	go p.cleaner()
	return p
}

func (p *pool) cleaner() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.cleanerStop:
			return
		}
	}
}

func (p *pool) evictIdle() {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, pc := range p.connections {
		pc.mu.Lock()
		if pc.client != nil && now.Sub(pc.lastUsed) > maxConnLife {
			_ = pc.client.Close()
			pc.client = nil
		}
		stillOpen := pc.client != nil
		pc.mu.Unlock()

		if !stillOpen {
			delete(p.connections, addr)
		}
	}
}

// get returns the connection slot for addr, creating it if this is the
// first use.
func (p *pool) get(addr string) *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc := p.connections[addr]
	if pc == nil {
		pc = &pooledConn{addr: addr}
		p.connections[addr] = pc
	}
	return pc
}

func (p *pool) drain() {
	close(p.cleanerStop)

	p.mu.Lock()
	defer p.mu.Unlock()

	for addr, pc := range p.connections {
		pc.mu.Lock()
		if pc.client != nil {
			_ = pc.client.Quit()
			pc.client = nil
		}
		pc.mu.Unlock()
		delete(p.connections, addr)
	}
}

// withClient dials (or reuses) the connection for this slot and runs fn.
// On any transport-level error the slot is torn down so the next send
// dials fresh, rather than retrying a wedged connection forever.
func (pc *pooledConn) withClient(cfg *config.SMTPConfig, fn func(*smtp.Client) error) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.client == nil {
		client, err := dial(cfg, pc.addr)
		if err != nil {
			return err
		}
		pc.client = client
	}

	err := fn(pc.client)
	if err != nil {
		_ = pc.client.Close()
		pc.client = nil
		return err
	}

	pc.lastUsed = time.Now()
	return nil
}

// dial opens a connection to addr following the teacher's
// STARTTLS-vs-explicit-TLS split (services/smtp/service.go
// sendWithSTARTTLS / sendWithExplicitTLS), then authenticates.
func dial(cfg *config.SMTPConfig, addr string) (*smtp.Client, error) {
	var client *smtp.Client
	var err error

	if cfg.ImplicitTLS {
		tlsConfig := &tls.Config{ServerName: cfg.Host}
		conn, dialErr := tls.Dial("tcp", addr, tlsConfig)
		if dialErr != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
	} else {
		conn, dialErr := net.Dial("tcp", addr)
		if dialErr != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if !cfg.ImplicitTLS {
		tlsConfig := &tls.Config{ServerName: cfg.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if cfg.User != "" {
		auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	return client, nil
}
