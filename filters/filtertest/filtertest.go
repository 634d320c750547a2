// Package filtertest implements mock versions of the filter context for
// testing filters in isolation.
package filtertest

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/rewrite"
)

// Context is a simple filter context implementation.
type Context struct {
	FResponseWriter http.ResponseWriter
	FRequest        *http.Request
	FResponse       *http.Response
	FServed         bool
	FServedResponse *http.Response
	FTarget         *rewrite.Context
	FStateBag       map[string]any
	FLogger         log.FieldLogger
}

func (fc *Context) ResponseWriter() http.ResponseWriter { return fc.FResponseWriter }
func (fc *Context) Request() *http.Request              { return fc.FRequest }
func (fc *Context) Response() *http.Response            { return fc.FResponse }
func (fc *Context) Served() bool                        { return fc.FServed }
func (fc *Context) Target() *rewrite.Context            { return fc.FTarget }

func (fc *Context) Serve(r *http.Response) {
	fc.FServed = true
	fc.FServedResponse = r
	fc.FResponse = r
}

func (fc *Context) StateBag() map[string]any {
	if fc.FStateBag == nil {
		fc.FStateBag = make(map[string]any)
	}

	return fc.FStateBag
}

func (fc *Context) Logger() log.FieldLogger {
	if fc.FLogger == nil {
		return log.StandardLogger()
	}

	return fc.FLogger
}
