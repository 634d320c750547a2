package proxy

import (
	"net/http"
	"time"

	ot "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/rewrite"
)

type context struct {
	responseWriter flushedResponseWriter
	request        *http.Request
	response       *http.Response
	served         bool
	stateBag       map[string]any
	target         *rewrite.Context
	logger         log.FieldLogger
	id             string
	startServe     time.Time
	proxySpan      ot.Span
}

// newContext works on a copy of the incoming request, so that the access
// log sees the request as received, not as modified by the filters.
func newContext(w flushedResponseWriter, r *http.Request, id string) *context {
	return &context{
		responseWriter: w,
		request:        r.Clone(r.Context()),
		stateBag:       make(map[string]any),
		logger:         log.WithField("request", id),
		id:             id,
		startServe:     time.Now(),
	}
}

func (c *context) setTarget(t *rewrite.Context) {
	c.target = t
	c.logger = c.logger.WithField("target", t.TargetHost())
}

func (c *context) targetHost() string {
	if c.target == nil {
		return ""
	}

	return c.target.TargetHost()
}

func (c *context) ResponseWriter() http.ResponseWriter { return c.responseWriter }
func (c *context) Request() *http.Request              { return c.request }
func (c *context) Response() *http.Response            { return c.response }
func (c *context) Served() bool                        { return c.served }
func (c *context) StateBag() map[string]any            { return c.stateBag }
func (c *context) Target() *rewrite.Context            { return c.target }
func (c *context) Logger() log.FieldLogger             { return c.logger }

func (c *context) Serve(r *http.Response) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}

	if r.Body == nil {
		r.Body = http.NoBody
	}

	r.Request = c.request
	c.response = r
	c.served = true
}
