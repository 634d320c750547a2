/*
Package landing implements the landing host of the gateway, e.g.
proxy.gw.tld.

It serves a minimal page on GET, and the link generation API:

	POST /api/generate
	{"url": "github.com"}

	200 OK
	{"success": true, "originalUrl": "https://github.com", "proxyUrl": "https://github--com.gw.tld"}

The submitted URL is normalized first: surrounding space is trimmed,
protocol relative URLs get https: and bare hosts get https:// prepended.
URLs with other schemes than http or https are rejected with 400, URLs
pointing to local or private networks with 403. Errors use the envelope of
package status.
*/
package landing

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/filters/cors"
	snet "github.com/subgate/subgate/net"
	"github.com/subgate/subgate/status"
	"github.com/subgate/subgate/subdomain"
)

// GeneratePath is the path of the link generation API.
const GeneratePath = "/api/generate"

const maxRequestBodySize = 64 << 10

//go:embed page.html
var pageHTML string

var page = template.Must(template.New("landing").Parse(pageHTML))

// Options of the landing handler.
type Options struct {
	// CORS policy of the responses. Defaults to cors.Default().
	CORS *cors.Policy

	// Status writes the JSON responses. Defaults to a writer using the
	// CORS policy.
	Status *status.Writer

	// Classifier validates the submitted URLs. Defaults to a classifier
	// blocking net.DefaultPrivateCIDRs.
	Classifier *snet.Classifier
}

// Handler serves the landing host.
type Handler struct {
	cors       *cors.Policy
	status     *status.Writer
	classifier *snet.Classifier
}

type generateRequest struct {
	URL string `json:"url"`
}

// GenerateResponse is the body of a successful link generation.
type GenerateResponse struct {
	Success     bool   `json:"success"`
	OriginalURL string `json:"originalUrl"`
	ProxyURL    string `json:"proxyUrl"`
}

type requestError struct {
	code    int
	message string
}

func (e *requestError) Error() string { return e.message }

var (
	errInvalidBody    = &requestError{http.StatusBadRequest, "Invalid request body"}
	errMissingURL     = &requestError{http.StatusBadRequest, "URL is required"}
	errInvalidURL     = &requestError{http.StatusBadRequest, "Invalid URL format"}
	errScheme         = &requestError{http.StatusBadRequest, "Only HTTP and HTTPS URLs are supported"}
	errPort           = &requestError{http.StatusBadRequest, "URLs with a custom port cannot be proxied"}
	errPrivateNetwork = &requestError{http.StatusForbidden, "Access to private networks is not allowed"}
)

// New creates the landing handler.
func New(o Options) (*Handler, error) {
	if o.CORS == nil {
		o.CORS = cors.Default()
	}

	if o.Status == nil {
		o.Status = status.NewWriter(o.CORS)
	}

	if o.Classifier == nil {
		c, err := snet.NewClassifier(nil)
		if err != nil {
			return nil, err
		}

		o.Classifier = c
	}

	return &Handler{cors: o.CORS, status: o.Status, classifier: o.Classifier}, nil
}

// Normalize completes the URL typed by a user into an absolute URL.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	case !strings.Contains(s, "://"):
		return "https://" + s
	default:
		return s
	}
}

// Generate returns the gateway URL serving raw under the gateway base
// domain.
func (h *Handler) Generate(raw, gatewayBase string) (*GenerateResponse, error) {
	s := Normalize(raw)
	if s == "" {
		return nil, errMissingURL
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, errInvalidURL
	}

	switch err := h.classifier.Check(u); {
	case errors.Is(err, snet.ErrUnsupportedScheme):
		return nil, errScheme
	case errors.Is(err, snet.ErrPrivateNetwork):
		return nil, errPrivateNetwork
	case err != nil:
		return nil, errInvalidURL
	}

	if p := u.Port(); p != "" && p != "80" && p != "443" {
		return nil, errPort
	}

	gw, err := subdomain.GatewayHost(strings.ToLower(u.Hostname()), gatewayBase)
	if err != nil || !subdomain.IsStandard(u.Hostname()) {
		return nil, errInvalidURL
	}

	pu := url.URL{
		Scheme:   "https",
		Host:     gw,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}

	if pu.Path == "/" {
		pu.Path = ""
	}

	return &GenerateResponse{
		Success:     true,
		OriginalURL: u.String(),
		ProxyURL:    pu.String(),
	}, nil
}

func gatewayBase(r *http.Request) string {
	host := snet.GatewayHostPatch.Apply(r.Host)
	if _, base, ok := subdomain.SplitHost(host); ok {
		return base
	}

	return host
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	rsp := h.cors.Preflight(r)
	for k, v := range rsp.Header {
		w.Header()[k] = v
	}

	w.WriteHeader(rsp.StatusCode)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		h.status.WriteError(w, errInvalidBody.code, errInvalidBody.message)
		return
	}

	rsp, err := h.Generate(req.URL, gatewayBase(r))
	if err != nil {
		var rerr *requestError
		if errors.As(err, &rerr) {
			h.status.WriteError(w, rerr.code, rerr.message)
			return
		}

		h.status.WriteError(w, http.StatusInternalServerError, "")
		return
	}

	h.status.WriteJSON(w, http.StatusOK, rsp)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	var b bytes.Buffer
	if err := page.Execute(&b, struct{ Base string }{gatewayBase(r)}); err != nil {
		log.Errorf("Failed to render the landing page: %v", err)
		h.status.WriteError(w, http.StatusInternalServerError, "")
		return
	}

	h.cors.SetHeaders(w.Header())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(b.Bytes())
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.preflight(w, r)
		return
	}

	switch {
	case r.URL.Path == GeneratePath && r.Method == http.MethodPost:
		h.generate(w, r)
	case r.URL.Path != GeneratePath && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		h.page(w, r)
	default:
		h.status.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
