package pipeline

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

// Context is the per-request scratch space threaded through the gate chain.
// Gates attach derived state here instead of mutating the request: the parsed
// intent declaration, the buffered body, and a monotonic latency clock.
// A Context belongs to exactly one request and dies with it.
type Context struct {
	Method     string
	Path       string
	Header     http.Header
	ClientAddr string

	// Intent is attached by the intent gate once the declaration validates.
	Intent *core.IntentDeclaration

	start time.Time

	bodyOnce sync.Once
	body     []byte
	bodyErr  error
	loadBody func() ([]byte, error)
}

// NewContext derives a pipeline context from an inbound engine request.
// The body is not consumed here; the first Body() call buffers it.
func NewContext(r *http.Request) *Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return &Context{
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     r.Header,
		ClientAddr: host,
		start:      time.Now(),
		loadBody: func() ([]byte, error) {
			if r.Body == nil {
				return nil, nil
			}
			defer r.Body.Close()
			return io.ReadAll(r.Body)
		},
	}
}

// NewTestContext builds a context directly from values, for gate tests.
func NewTestContext(method, path, clientAddr string, header http.Header, body []byte) *Context {
	if header == nil {
		header = http.Header{}
	}
	return &Context{
		Method:     method,
		Path:       path,
		Header:     header,
		ClientAddr: clientAddr,
		start:      time.Now(),
		loadBody:   func() ([]byte, error) { return body, nil },
	}
}

// Body returns the request body, buffering it on first use so every gate
// downstream of the first reader sees the same bytes.
func (c *Context) Body() ([]byte, error) {
	c.bodyOnce.Do(func() {
		c.body, c.bodyErr = c.loadBody()
	})
	return c.body, c.bodyErr
}

// Action is the request expressed as "METHOD /path", the form the intent
// declaration must match. The query string never participates.
func (c *Context) Action() string {
	return c.Method + " " + c.Path
}

// ElapsedMS is the time since the context was created, in milliseconds.
func (c *Context) ElapsedMS() float64 {
	return float64(time.Since(c.start).Microseconds()) / 1000.0
}
