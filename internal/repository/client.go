// Package repository is an HTTP client for the repository REST service,
// which owns server-side metadata the engine protocol does not expose:
// app inventory, users, streams, reload tasks and data connections.
package repository

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Options configures the repository client.
type Options struct {
	Host          string
	Port          int    // default 4242
	URL           string // explicit base URL, overrides Host/Port
	UserDirectory string
	UserID        string

	CertFile  string
	KeyFile   string
	CAFile    string
	VerifySSL bool
	Timeout   time.Duration // per-request deadline, default 30s
}

func (o Options) baseURL() string {
	if o.URL != "" {
		return strings.TrimSuffix(o.URL, "/")
	}
	host := strings.TrimPrefix(strings.TrimPrefix(o.Host, "https://"), "http://")
	port := o.Port
	if port == 0 {
		port = 4242
	}
	return fmt.Sprintf("https://%s:%d", host, port)
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
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

// Client calls the repository REST API. Every request carries the
// cross-site-request-forgery key the service demands, both as a query
// parameter and as a header.
type Client struct {
	opts Options
	http *http.Client
}

// New builds a repository client from opts.
func New(opts Options) (*Client, error) {
	tlsCfg, err := opts.tlsConfig()
	if err != nil {
		return nil, err
	}
	return &Client{
		opts: opts,
		http: &http.Client{
			Timeout:   opts.timeout(),
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
	}, nil
}

// xrfKey generates the 16-character alphanumeric key the service requires.
func xrfKey() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "0123456789abcdef"
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	key := xrfKey()
	if query == nil {
		query = url.Values{}
	}
	query.Set("xrfkey", key)

	u := c.opts.baseURL() + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("repository: build request: %w", err)
	}
	req.Header.Set("X-Qlik-Xrfkey", key)
	req.Header.Set("X-Qlik-User",
		fmt.Sprintf("UserDirectory=%s; UserId=%s", c.opts.UserDirectory, c.opts.UserID))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("repository: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Debug("repository: request failed", "path", path, "status", resp.StatusCode)
		return &StatusError{Status: resp.StatusCode, Body: string(body), Path: path}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("repository: decode %s: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx repository response.
type StatusError struct {
	Status int
	Body   string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("repository: %s returned %d", e.Path, e.Status)
}

// NotFound reports whether err is a repository 404.
func NotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Status == http.StatusNotFound
}

// ---- resources -------------------------------------------------------------

// App is the repository's view of one application.
type App struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Owner       Owner     `json:"owner"`
	Stream      *Stream   `json:"stream"`
	Published   bool      `json:"published"`
	FileSize    int64     `json:"fileSize"`
	LastReload  time.Time `json:"lastReloadTime"`
	Created     time.Time `json:"createdDate"`
	Modified    time.Time `json:"modifiedDate"`
	Description string    `json:"description"`
}

// Owner identifies a resource owner.
type Owner struct {
	UserID        string `json:"userId"`
	UserDirectory string `json:"userDirectory"`
	Name          string `json:"name"`
}

// Stream is a publishing stream.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is one directory user.
type User struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	UserDirectory string `json:"userDirectory"`
	Name          string `json:"name"`
	Inactive      bool   `json:"inactive"`
	RemovedExt    bool   `json:"removedExternally"`
}

// Task is one reload task.
type Task struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	App     *App   `json:"app"`
	Status  struct {
		NextExecution time.Time `json:"nextExecution"`
	} `json:"operational"`
}

// DataConnection is one data connection definition.
type DataConnection struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ConnectionString string `json:"connectionstring"`
	Type             string `json:"type"`
	Username         string `json:"username"`
}

// Apps lists applications, optionally filtered with the repository's
// filter syntax.
func (c *Client) Apps(ctx context.Context, filter string) ([]App, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	var apps []App
	if err := c.do(ctx, http.MethodGet, "/qrs/app/full", q, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// AppByID fetches one application record.
func (c *Client) AppByID(ctx context.Context, id string) (*App, error) {
	var app App
	if err := c.do(ctx, http.MethodGet, "/qrs/app/"+url.PathEscape(id), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// AppMetadata fetches the data-model metadata document of one application:
// tables, fields and lineage as the repository sees them. The shape varies
// by server version, so it passes through uninterpreted.
func (c *Client) AppMetadata(ctx context.Context, id string) (json.RawMessage, error) {
	var meta json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/qrs/app/"+url.PathEscape(id)+"/data/metadata", nil, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Users lists directory users.
func (c *Client) Users(ctx context.Context, filter string) ([]User, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	var users []User
	if err := c.do(ctx, http.MethodGet, "/qrs/user/full", q, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Streams lists publishing streams.
func (c *Client) Streams(ctx context.Context) ([]Stream, error) {
	var streams []Stream
	if err := c.do(ctx, http.MethodGet, "/qrs/stream/full", nil, &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// Tasks lists reload tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/qrs/reloadtask/full", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// StartTask triggers one reload task.
func (c *Client) StartTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/qrs/task/"+url.PathEscape(id)+"/start", nil, nil)
}

// DataConnections lists data connection definitions.
func (c *Client) DataConnections(ctx context.Context) ([]DataConnection, error) {
	var conns []DataConnection
	if err := c.do(ctx, http.MethodGet, "/qrs/dataconnection/full", nil, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}
