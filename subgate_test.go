package subgate

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	listenDelay   = 15 * time.Millisecond
	listenTimeout = 9 * listenDelay
)

func findAddress(t *testing.T) string {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	defer l.Close()
	return l.Addr().String()
}

func waitConn(req func() (*http.Response, error)) (*http.Response, error) {
	to := time.After(listenTimeout)
	for {
		rsp, err := req()
		if err == nil {
			return rsp, nil
		}

		select {
		case <-to:
			return nil, err
		default:
			time.Sleep(listenDelay)
		}
	}
}

func testGateway(t *testing.T, o Options) *gateway {
	g, err := newGateway(o)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func serve(g *gateway, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func TestGatewayRejectsBeforeAnyIO(t *testing.T) {
	g := testGateway(t, Options{BlockPrivateTargets: true, AccessLogDisabled: true})

	for _, tt := range []struct {
		name    string
		target  string
		code    int
		message string
	}{{
		name:    "single label",
		target:  "http://localhost.gw.tld/",
		code:    http.StatusBadRequest,
		message: "Invalid subdomain",
	}, {
		name:    "loopback target",
		target:  "http://127--0--0--1.gw.tld/",
		code:    http.StatusForbidden,
		message: "Access to private networks is not allowed",
	}, {
		name:    "private target",
		target:  "http://10--1--2--3.gw.tld/admin",
		code:    http.StatusForbidden,
		message: "Access to private networks is not allowed",
	}} {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(g, "GET", tt.target, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.message, gjson.Get(rec.Body.String(), "error").String())
			assert.Equal(t, int64(tt.code), gjson.Get(rec.Body.String(), "status").Int())
		})
	}
}

func TestGatewayAllowedMethods(t *testing.T) {
	g := testGateway(t, Options{AllowedMethods: []string{"GET", "OPTIONS"}, AccessLogDisabled: true})

	rec := serve(g, "POST", "http://youtube--com.gw.tld/", "x")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(g, "OPTIONS", "http://youtube--com.gw.tld/", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestGatewayLanding(t *testing.T) {
	g := testGateway(t, Options{LandingLabel: "start", AccessLogDisabled: true})

	rec := serve(g, "POST", "http://start.gw.tld/api/generate", `{"url":"github.com/zalando"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://github--com.gw.tld/zalando", gjson.Get(rec.Body.String(), "proxyUrl").String())

	rec = serve(g, "POST", "http://start.gw.tld/api/generate", `{"url":"http://192.168.1.1/"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(g, "GET", "http://start.gw.tld/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestGatewayBlockedCIDRs(t *testing.T) {
	_, err := newGateway(Options{BlockedCIDRs: []string{"not-a-network"}})
	assert.Error(t, err)

	g := testGateway(t, Options{BlockPrivateTargets: true, BlockedCIDRs: []string{"198.51.100.0/24"}, AccessLogDisabled: true})
	rec := serve(g, "GET", "http://198--51--100--7.gw.tld/", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSupportHandler(t *testing.T) {
	g := testGateway(t, Options{AccessLogDisabled: true})
	serve(g, "GET", "http://localhost.gw.tld/", "")

	support := supportHandler(g.metrics)

	rec := httptest.NewRecorder()
	support.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	support.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `subgate_serve_requests_total{code="400",method="GET"} 1`)
}

func TestListenAndServeQuit(t *testing.T) {
	g := testGateway(t, Options{AccessLogDisabled: true})

	o := &Options{Address: findAddress(t), ShutdownTimeout: time.Second}
	sig := make(chan os.Signal, 1)
	idleConnsCH := make(chan struct{})
	errCH := make(chan error, 1)

	go func() {
		errCH <- listenAndServeQuit(g.handler, o, sig, idleConnsCH)
	}()

	rsp, err := waitConn(func() (*http.Response, error) {
		req, err := http.NewRequest("GET", "http://"+o.Address+"/", nil)
		if err != nil {
			return nil, err
		}

		req.Host = "invalid.gw.tld"
		return http.DefaultClient.Do(req)
	})
	require.NoError(t, err)

	_, err = io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)

	sig <- syscall.SIGTERM

	select {
	case <-idleConnsCH:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown timed out")
	}

	assert.NoError(t, <-errCH)
	http.DefaultClient.CloseIdleConnections()
}

func TestListenAndServeQuitInvalidAddress(t *testing.T) {
	o := &Options{Address: "invalid-address"}
	assert.Error(t, listenAndServeQuit(http.NotFoundHandler(), o, make(chan os.Signal), nil))
}

func TestGatewayTracer(t *testing.T) {
	_, err := newGateway(Options{OpenTracing: []string{"zipkin"}})
	assert.Error(t, err)

	g := testGateway(t, Options{OpenTracing: []string{"basic", "drop-all-logs"}, AccessLogDisabled: true})
	rec := serve(g, "GET", "http://localhost.gw.tld/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
