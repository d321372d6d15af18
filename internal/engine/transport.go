package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures an engine session.
type Options struct {
	Host          string // server hostname, scheme stripped if present
	Port          int    // engine port, default 4747
	URL           string // explicit ws:// or wss:// endpoint; overrides Host/Port
	UserDirectory string
	UserID        string

	CertFile   string // client certificate (PEM)
	KeyFile    string // client key (PEM)
	CAFile     string // trust bundle (PEM)
	VerifySSL  bool
	Timeout    time.Duration     // per-invoke deadline, default 30s
	PageSize   int               // hypercube page height, default 1000
	Statistics map[string]string // field-statistics expression templates
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return 1000
	}
	return o.PageSize
}

// endpoints returns the candidate WebSocket URLs in preference order,
// mirroring the engine's /app/engineData and /app session endpoints.
func (o Options) endpoints() []string {
	if o.URL != "" {
		return []string{o.URL}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(o.Host, "https://"), "http://")
	port := o.Port
	if port == 0 {
		port = 4747
	}
	base := fmt.Sprintf("%s:%d", host, port)
	return []string{
		"wss://" + base + "/app/engineData",
		"wss://" + base + "/app",
		"ws://" + base + "/app/engineData",
		"ws://" + base + "/app",
	}
}

func (o Options) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: !o.VerifySSL} //nolint:gosec // verify toggle is operator-controlled
	if o.CertFile != "" && o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", o.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// Transport owns one WebSocket connection to the engine. Writes are
// serialized; reads happen on a single loop owned by the caller.
type Transport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// dial tries each candidate endpoint until one completes the upgrade.
func dial(ctx context.Context, opts Options) (*Transport, error) {
	tlsCfg, err := opts.tlsConfig()
	if err != nil {
		return nil, wrapErr(KindConnection, err, "dial: %v", err)
	}
	dialer := &websocket.Dialer{
		TLSClientConfig:  tlsCfg,
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("X-Qlik-User",
		fmt.Sprintf("UserDirectory=%s; UserId=%s", opts.UserDirectory, opts.UserID))

	var lastErr error
	for _, u := range opts.endpoints() {
		conn, resp, err := dialer.DialContext(ctx, u, header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			lastErr = err
			slog.Debug("engine: dial failed", "url", u, "err", err)
			continue
		}
		slog.Debug("engine: connected", "url", u)
		return &Transport{conn: conn}, nil
	}
	return nil, wrapErr(KindConnection, lastErr, "dial: no endpoint reachable, last error: %v", lastErr)
}

// Send writes one JSON frame. Safe for concurrent use.
func (t *Transport) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return wrapErr(KindProtocol, err, "encode frame: %v", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.isClosed() {
		return errf(KindConnection, "send on closed connection")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return wrapErr(KindConnection, err, "write frame: %v", err)
	}
	return nil
}

// ReadLoop decodes inbound frames and hands them to fn until the
// connection fails or is closed. Undecodable frames are dropped.
func (t *Transport) ReadLoop(fn func(frame []byte)) error {
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return errf(KindConnection, "connection closed")
			}
			return wrapErr(KindConnection, err, "read frame: %v", err)
		}
		if !json.Valid(raw) {
			slog.Warn("engine: dropping undecodable frame", "bytes", len(raw))
			continue
		}
		fn(raw)
	}
}

// Close releases the socket. Idempotent.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *Transport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
