// Package netbridge performs the outbound HTTP requests issued by the
// achievement engine.
//
// Every call is independent: the trust bundle is materialised to a
// temporary file, loaded, and removed again, and a fresh client is built
// for the request. Nothing is retained between calls, so Send may be
// invoked from any goroutine.
package netbridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/afero"
)

// DefaultTimeout bounds a whole request including reading the body.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps responses; achievement set payloads are well below this.
const maxBodySize = 16 * 1024 * 1024

const defaultContentType = "application/x-www-form-urlencoded"

//go:embed cacert.pem
var bundledCACerts []byte

// ErrTransport is returned when no HTTP response could be obtained: the
// trust bundle could not be provisioned, DNS or connect failed, the
// request timed out, or the body could not be read.
var ErrTransport = errors.New("transport failure")

// Request describes a single outbound call. An empty PostData makes the
// request a GET.
type Request struct {
	URL         string
	PostData    string
	ContentType string
}

// Method returns the HTTP method implied by the request.
func (r Request) Method() string {
	if r.PostData != "" {
		return http.MethodPost
	}
	return http.MethodGet
}

// Response is a completed HTTP exchange. Non-2xx statuses are responses,
// not transport failures.
type Response struct {
	StatusCode int
	Body       []byte
}

// Bridge sends requests with a fixed client identifier and trust bundle.
type Bridge struct {
	fs        afero.Fs
	tempDir   string
	userAgent string
	timeout   time.Duration
	caBundle  []byte
	maxBody   int64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithFs sets the filesystem used for the temporary trust bundle.
func WithFs(fs afero.Fs) Option {
	return func(b *Bridge) { b.fs = fs }
}

// WithTempDir sets the directory the trust bundle is written to. Empty
// means the system temporary directory.
func WithTempDir(dir string) Option {
	return func(b *Bridge) { b.tempDir = dir }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithCABundle replaces the embedded PEM bundle.
func WithCABundle(pem []byte) Option {
	return func(b *Bridge) {
		if len(pem) > 0 {
			b.caBundle = pem
		}
	}
}

// New creates a Bridge that identifies itself with userAgent.
func New(userAgent string, opts ...Option) *Bridge {
	b := &Bridge{
		fs:        afero.NewOsFs(),
		userAgent: userAgent,
		timeout:   DefaultTimeout,
		caBundle:  bundledCACerts,
		maxBody:   maxBodySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UserAgent builds the client identifier "<app>/<version> (<OS>) <clause>".
// clause is normally the engine's own identifier and may be empty.
func UserAgent(clientName, clause string) string {
	if clause == "" {
		return clientName
	}
	return clientName + " " + clause
}

// Timeout returns the per-request timeout.
func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// Send performs req and returns the status and full body.
func (b *Bridge) Send(ctx context.Context, req Request) (Response, error) {
	bundlePath, err := b.writeBundle()
	if err != nil {
		log.Printf("[netbridge] failed to provision trust bundle: %v", err)
		return Response{}, fmt.Errorf("%w: trust bundle: %w", ErrTransport, err)
	}
	defer b.removeBundle(bundlePath)

	pool, err := b.loadBundle(bundlePath)
	if err != nil {
		log.Printf("[netbridge] failed to load trust bundle: %v", err)
		return Response{}, fmt.Errorf("%w: trust bundle: %w", ErrTransport, err)
	}

	var body io.Reader
	if req.PostData != "" {
		body = bytes.NewReader([]byte(req.PostData))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	httpReq.Header.Set("User-Agent", b.userAgent)
	if req.PostData != "" {
		contentType := req.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		httpReq.Header.Set("Content-Type", contentType)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		},
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Timeout:   b.timeout,
		Transport: transport,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody+1))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if int64(len(data)) > b.maxBody {
		return Response{}, fmt.Errorf("%w: body exceeds %d bytes", ErrTransport, b.maxBody)
	}

	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// writeBundle materialises the PEM bundle and returns the file's path.
func (b *Bridge) writeBundle() (string, error) {
	f, err := afero.TempFile(b.fs, b.tempDir, "ra_cacert*.pem")
	if err != nil {
		return "", err
	}
	name := f.Name()

	if _, err := f.Write(b.caBundle); err != nil {
		f.Close()
		b.removeBundle(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		b.removeBundle(name)
		return "", err
	}
	return name, nil
}

func (b *Bridge) loadBundle(path string) (*x509.CertPool, error) {
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("no certificates in bundle")
	}
	return pool, nil
}

func (b *Bridge) removeBundle(path string) {
	if err := b.fs.Remove(path); err != nil {
		log.Printf("[netbridge] failed to remove %s: %v", path, err)
	}
}
