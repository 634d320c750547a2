package status_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgate/subgate/filters/cors"
	"github.com/subgate/subgate/status"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 42*int(time.Millisecond), time.FixedZone("CEST", 2*3600))
}

func testWriter() *status.Writer {
	w := status.NewWriter(cors.Default())
	w.SetNow(fixedNow)
	return w
}

func TestWriteError(t *testing.T) {
	for _, tc := range []struct {
		code     int
		message  string
		expected status.Envelope
	}{{
		code:     http.StatusBadRequest,
		message:  "Invalid subdomain",
		expected: status.Envelope{Error: "Invalid subdomain", Status: 400, Timestamp: "2024-05-01T10:00:00.042Z"},
	}, {
		code:     http.StatusGatewayTimeout,
		expected: status.Envelope{Error: "Gateway Timeout", Status: 504, Timestamp: "2024-05-01T10:00:00.042Z"},
	}, {
		code:     http.StatusInternalServerError,
		message:  `dial tcp: <lookup> "x" failed`,
		expected: status.Envelope{Error: `dial tcp: <lookup> "x" failed`, Status: 500, Timestamp: "2024-05-01T10:00:00.042Z"},
	}} {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			testWriter().WriteError(rec, tc.code, tc.message)

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))

			var got status.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("envelope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvelopeFieldNames(t *testing.T) {
	rec := httptest.NewRecorder()
	testWriter().WriteError(rec, http.StatusMethodNotAllowed, "Method not allowed")
	assert.JSONEq(t, `{"error":"Method not allowed","status":405,"timestamp":"2024-05-01T10:00:00.042Z"}`, rec.Body.String())
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	status.NewWriter(nil).WriteJSON(rec, http.StatusOK, map[string]any{"success": true, "proxyUrl": "https://a--b.gw.tld/?x=1&y=2"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), `"https://a--b.gw.tld/?x=1&y=2"`)
}
