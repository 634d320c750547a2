package config

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/go-cmp/cmp"

	"github.com/subgate/subgate"
)

func defaultOptions() subgate.Options {
	return subgate.Options{
		Address:                ":9090",
		SupportListener:        ":9911",
		ReadHeaderTimeout:      60 * time.Second,
		ShutdownTimeout:        30 * time.Second,
		LandingLabel:           "proxy",
		UpstreamTimeout:        30 * time.Second,
		MaxRewriteBodySize:     10 << 20,
		BlockPrivateTargets:    true,
		ApplicationLogLevel:    log.InfoLevel,
		ApplicationLogPrefix:   "[APP]",
		EnableRuntimeMetrics:   true,
		HistogramMetricBuckets: prometheus.DefBuckets,

		OpenTracing:                         []string{"noop"},
		OpenTracingInitialSpan:              "ingress",
		OpenTracingLogFilterLifecycleEvents: true,
		OpenTracingLogStreamEvents:          true,
	}
}

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("subgate", nil))

	if d := cmp.Diff(defaultOptions(), cfg.ToOptions()); d != "" {
		t.Errorf("unexpected options (-want +got):\n%s", d)
	}
}

func TestFlags(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("subgate", []string{
		"-address", ":8080",
		"-allowed-methods", "GET,HEAD",
		"-request-header-blocklist", "X-Forwarded-For, X-Real-Ip",
		"-block-private-targets=false",
		"-upstream-timeout", "3s",
		"-application-log-level", "warn",
		"-enable-proxy-protocol",
		"-proxy-protocol-allow-list", "10.0.0.0/8",
		"-opentracing", "basic  sample-modulo=10",
		"-opentracing-excluded-proxy-tags", "http.url,http.path",
	})
	require.NoError(t, err)

	o := cfg.ToOptions()
	assert.Equal(t, ":8080", o.Address)
	assert.Equal(t, []string{"GET", "HEAD"}, o.AllowedMethods)
	assert.Equal(t, []string{"X-Forwarded-For", "X-Real-Ip"}, o.RequestHeaderBlocklist)
	assert.False(t, o.BlockPrivateTargets)
	assert.Equal(t, 3*time.Second, o.UpstreamTimeout)
	assert.Equal(t, log.WarnLevel, o.ApplicationLogLevel)
	assert.True(t, o.EnableProxyProtocol)
	assert.Equal(t, []string{"10.0.0.0/8"}, o.ProxyProtocolAllowListCIDRs)
	assert.Equal(t, []string{"basic", "sample-modulo=10"}, o.OpenTracing)
	assert.Equal(t, []string{"http.url", "http.path"}, o.OpenTracingExcludedProxyTags)
}

func TestConfigFile(t *testing.T) {
	expected := defaultOptions()
	expected.Address = "localhost:8080"
	expected.LandingLabel = "start"
	expected.UpstreamTimeout = 5 * time.Second
	expected.MaxRewriteBodySize = 1 << 20
	expected.AllowedMethods = []string{"GET", "HEAD", "OPTIONS"}
	expected.CDNSuffixes = []string{"cdn.example.org"}
	expected.BlockPrivateTargets = false
	expected.BlockedCIDRs = []string{"100.64.0.0/10"}
	expected.ApplicationLogLevel = log.DebugLevel
	expected.AccessLogJSONEnabled = true
	expected.HistogramMetricBuckets = []float64{0.1, 0.5, 1}

	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("subgate", []string{"-config-file=testdata/test.yaml"}))

	if d := cmp.Diff(expected, cfg.ToOptions()); d != "" {
		t.Errorf("unexpected options (-want +got):\n%s", d)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("subgate", []string{
		"-config-file=testdata/test.yaml",
		"-address", ":7070",
		"-allowed-methods", "GET",
	})
	require.NoError(t, err)

	o := cfg.ToOptions()
	assert.Equal(t, ":7070", o.Address)
	assert.Equal(t, []string{"GET"}, o.AllowedMethods)
	assert.Equal(t, "start", o.LandingLabel)
	assert.Equal(t, "GET", cfg.AllowedMethods.String())
}

func TestInvalidConfig(t *testing.T) {
	for _, tt := range []struct {
		name string
		args []string
	}{{
		name: "extra arguments",
		args: []string{"foo"},
	}, {
		name: "missing config file",
		args: []string{"-config-file=testdata/missing.yaml"},
	}, {
		name: "invalid config file",
		args: []string{"-config-file=testdata/invalid.yaml"},
	}, {
		name: "log level",
		args: []string{"-application-log-level=LOUD"},
	}, {
		name: "histogram buckets",
		args: []string{"-histogram-metric-buckets=0.1,fast"},
	}, {
		name: "blocked CIDR",
		args: []string{"-blocked-cidrs=10.0.0.0/99"},
	}, {
		name: "proxy protocol list",
		args: []string{"-proxy-protocol-allow-list=10.0.0.0/8,bogus"},
	}, {
		name: "unsupported tracer",
		args: []string{"-opentracing=zipkin"},
	}, {
		name: "invalid tracer option",
		args: []string{"-opentracing=basic sample-modulo=x"},
	}, {
		name: "upstream timeout",
		args: []string{"-upstream-timeout=0s"},
	}, {
		name: "rewrite body size",
		args: []string{"-max-rewrite-body-size=-1"},
	}, {
		name: "landing label with a dot",
		args: []string{"-landing-label=proxy.gw"},
	}} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			assert.Error(t, cfg.ParseArgs("subgate", tt.args))
		})
	}
}
