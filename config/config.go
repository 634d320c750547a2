// Package config reads the settings of the gateway from the command line
// flags and an optional YAML file, and turns them into subgate.Options.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/subgate/subgate"
	"github.com/subgate/subgate/filters/content"
	snet "github.com/subgate/subgate/net"
	"github.com/subgate/subgate/proxy"
	"github.com/subgate/subgate/tracing"
)

type Config struct {
	Flags      *flag.FlagSet
	ConfigFile string

	// generic:
	Address           string        `yaml:"address"`
	SupportListener   string        `yaml:"support-listener"`
	ReadHeaderTimeout time.Duration `yaml:"read-header-timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown-timeout"`
	PrintVersion      bool          `yaml:"version"`

	// proxy protocol:
	EnableProxyProtocol         bool      `yaml:"enable-proxy-protocol"`
	ProxyProtocolAllowListCIDRs *listFlag `yaml:"proxy-protocol-allow-list"`
	ProxyProtocolSkipListCIDRs  *listFlag `yaml:"proxy-protocol-skip-list"`
	ProxyProtocolDenyListCIDRs  *listFlag `yaml:"proxy-protocol-deny-list"`

	// gateway:
	LandingLabel       string        `yaml:"landing-label"`
	UpstreamTimeout    time.Duration `yaml:"upstream-timeout"`
	MaxRewriteBodySize int64         `yaml:"max-rewrite-body-size"`
	Insecure           bool          `yaml:"insecure"`
	AllowedMethods     *listFlag     `yaml:"allowed-methods"`
	CDNSuffixes        *listFlag     `yaml:"cdn-suffixes"`

	// safety:
	RequestHeaderBlocklist  *listFlag `yaml:"request-header-blocklist"`
	ResponseHeaderBlocklist *listFlag `yaml:"response-header-blocklist"`
	BlockPrivateTargets     bool      `yaml:"block-private-targets"`
	BlockedCIDRs            *listFlag `yaml:"blocked-cidrs"`

	// logging:
	ApplicationLogLevel       log.Level `yaml:"-"`
	ApplicationLogLevelString string    `yaml:"application-log-level"`
	ApplicationLogPrefix      string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool      `yaml:"application-log-json-enabled"`
	AccessLogDisabled         bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled      bool      `yaml:"access-log-json-enabled"`

	// metrics:
	EnableRuntimeMetrics         bool      `yaml:"runtime-metrics"`
	HistogramMetricBucketsString string    `yaml:"histogram-metric-buckets"`
	HistogramMetricBuckets       []float64 `yaml:"-"`

	// tracing:
	OpenTracing                         string    `yaml:"opentracing"`
	OpenTracingInitialSpan              string    `yaml:"opentracing-initial-span"`
	OpenTracingExcludedProxyTags        *listFlag `yaml:"opentracing-excluded-proxy-tags"`
	OpentracingLogFilterLifecycleEvents bool      `yaml:"opentracing-log-filter-lifecycle-events"`
	OpentracingLogStreamEvents          bool      `yaml:"opentracing-log-stream-events"`
}

const (
	defaultReadHeaderTimeout = 60 * time.Second
	defaultShutdownTimeout   = 30 * time.Second

	// generic:
	addressUsage           = "network address that the gateway should listen on"
	supportListenerUsage   = "network address used for exposing the /metrics endpoint. An empty value disables the support endpoint"
	readHeaderTimeoutUsage = "maximum duration of reading the request headers from the clients"
	shutdownTimeoutUsage   = "maximum duration of draining the open connections on SIGTERM"

	// proxy protocol:
	enableProxyProtocolUsage = "accept the PROXY protocol header of the load balancers on the main listener"
	proxyProtocolAllowUsage  = "comma separated list of networks that must send the PROXY protocol header. When empty, the header is optional for every peer"
	proxyProtocolSkipUsage   = "comma separated list of networks whose PROXY protocol header is not read"
	proxyProtocolDenyUsage   = "comma separated list of networks that must not send the PROXY protocol header"

	// gateway:
	landingLabelUsage       = "first label of the host serving the landing page and the link generation API"
	upstreamTimeoutUsage    = "maximum duration of an upstream request until the response headers are received"
	maxRewriteBodySizeUsage = "bodies larger than this size, in bytes, are streamed without rewriting"
	insecureUsage           = "flag indicating to ignore the verification of the TLS certificates of the upstream servers"
	allowedMethodsUsage     = "comma separated list of the HTTP methods that can be proxied, defaults to GET,POST,PUT,DELETE,PATCH,HEAD,OPTIONS"
	cdnSuffixesUsage        = "comma separated list of host suffixes that are left pointing to the original host in the rewritten content"

	// safety:
	requestHeaderBlocklistUsage  = "comma separated list of the request headers that are never forwarded upstream, replaces the default list"
	responseHeaderBlocklistUsage = "comma separated list of the response headers that are removed from the upstream responses, replaces the default list"
	blockPrivateTargetsUsage     = "reject the targets that are private, loopback or link-local addresses, or resolve to one"
	blockedCIDRsUsage            = "comma separated list of additional networks or addresses that cannot be proxied"

	// logging:
	applicationLogLevelUsage       = "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG"
	applicationLogPrefixUsage      = "prefix for each log entry"
	applicationLogJSONEnabledUsage = "when this flag is set, log in JSON format is used"
	accessLogDisabledUsage         = "when this flag is set, no access log is printed"
	accessLogJSONEnabledUsage      = "when this flag is set, log in JSON format is used for the access log"

	// metrics:
	runtimeMetricsUsage         = "enables reporting the Go runtime and process metrics"
	histogramMetricBucketsUsage = "use custom buckets for the duration histograms, comma separated list of seconds"

	// tracing:
	openTracingUsage                   = "list of arguments for opentracing (space separated), first argument is the tracer implementation: noop or basic"
	openTracingInitialSpanUsage        = "set the name of the initial span of the requests"
	openTracingExcludedProxyTagsUsage  = "comma separated list of tags that are not set on the proxy spans"
	openTracingLogFilterLifecycleUsage = "enables the logs for request & response filters' lifecycle events that are marking start & end times"
	openTracingLogStreamEventsUsage    = "enables the logs for events marking the times response headers & payload are streamed to the client"
)

func NewConfig() *Config {
	cfg := new(Config)
	cfg.AllowedMethods = commaListFlag()
	cfg.CDNSuffixes = commaListFlag()
	cfg.RequestHeaderBlocklist = commaListFlag()
	cfg.ResponseHeaderBlocklist = commaListFlag()
	cfg.BlockedCIDRs = commaListFlag()
	cfg.ProxyProtocolAllowListCIDRs = commaListFlag()
	cfg.ProxyProtocolSkipListCIDRs = commaListFlag()
	cfg.ProxyProtocolDenyListCIDRs = commaListFlag()
	cfg.OpenTracingExcludedProxyTags = commaListFlag()

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", ":9090", addressUsage)
	flag.StringVar(&cfg.SupportListener, "support-listener", ":9911", supportListenerUsage)
	flag.DurationVar(&cfg.ReadHeaderTimeout, "read-header-timeout", defaultReadHeaderTimeout, readHeaderTimeoutUsage)
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, shutdownTimeoutUsage)
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print the version of the gateway")

	// proxy protocol:
	flag.BoolVar(&cfg.EnableProxyProtocol, "enable-proxy-protocol", false, enableProxyProtocolUsage)
	flag.Var(cfg.ProxyProtocolAllowListCIDRs, "proxy-protocol-allow-list", proxyProtocolAllowUsage)
	flag.Var(cfg.ProxyProtocolSkipListCIDRs, "proxy-protocol-skip-list", proxyProtocolSkipUsage)
	flag.Var(cfg.ProxyProtocolDenyListCIDRs, "proxy-protocol-deny-list", proxyProtocolDenyUsage)

	// gateway:
	flag.StringVar(&cfg.LandingLabel, "landing-label", proxy.DefaultLandingLabel, landingLabelUsage)
	flag.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", proxy.DefaultTimeout, upstreamTimeoutUsage)
	flag.Int64Var(&cfg.MaxRewriteBodySize, "max-rewrite-body-size", content.DefaultMaxBodySize, maxRewriteBodySizeUsage)
	flag.BoolVar(&cfg.Insecure, "insecure", false, insecureUsage)
	flag.Var(cfg.AllowedMethods, "allowed-methods", allowedMethodsUsage)
	flag.Var(cfg.CDNSuffixes, "cdn-suffixes", cdnSuffixesUsage)

	// safety:
	flag.Var(cfg.RequestHeaderBlocklist, "request-header-blocklist", requestHeaderBlocklistUsage)
	flag.Var(cfg.ResponseHeaderBlocklist, "response-header-blocklist", responseHeaderBlocklistUsage)
	flag.BoolVar(&cfg.BlockPrivateTargets, "block-private-targets", true, blockPrivateTargetsUsage)
	flag.Var(cfg.BlockedCIDRs, "blocked-cidrs", blockedCIDRsUsage)

	// logging:
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", applicationLogLevelUsage)
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", applicationLogPrefixUsage)
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, applicationLogJSONEnabledUsage)
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, accessLogDisabledUsage)
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, accessLogJSONEnabledUsage)

	// metrics:
	flag.BoolVar(&cfg.EnableRuntimeMetrics, "runtime-metrics", true, runtimeMetricsUsage)
	flag.StringVar(&cfg.HistogramMetricBucketsString, "histogram-metric-buckets", "", histogramMetricBucketsUsage)

	// tracing:
	flag.StringVar(&cfg.OpenTracing, "opentracing", "noop", openTracingUsage)
	flag.StringVar(&cfg.OpenTracingInitialSpan, "opentracing-initial-span", "ingress", openTracingInitialSpanUsage)
	flag.Var(cfg.OpenTracingExcludedProxyTags, "opentracing-excluded-proxy-tags", openTracingExcludedProxyTagsUsage)
	flag.BoolVar(&cfg.OpentracingLogFilterLifecycleEvents, "opentracing-log-filter-lifecycle-events", true, openTracingLogFilterLifecycleUsage)
	flag.BoolVar(&cfg.OpentracingLogStreamEvents, "opentracing-log-stream-events", true, openTracingLogStreamEventsUsage)

	cfg.Flags = flag

	return cfg
}

func validate(c *Config) error {
	if _, err := log.ParseLevel(c.ApplicationLogLevelString); err != nil {
		return err
	}

	if _, err := c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets); err != nil {
		return err
	}

	if _, err := snet.NewClassifier(c.BlockedCIDRs.values); err != nil {
		return err
	}

	for _, l := range []*listFlag{c.ProxyProtocolAllowListCIDRs, c.ProxyProtocolSkipListCIDRs, c.ProxyProtocolDenyListCIDRs} {
		if _, err := snet.ParseIPCIDRs(l.values); err != nil {
			return fmt.Errorf("invalid proxy protocol list %q: %w", l, err)
		}
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("invalid upstream timeout: %v", c.UpstreamTimeout)
	}

	if c.MaxRewriteBodySize <= 0 {
		return fmt.Errorf("invalid max rewrite body size: %d", c.MaxRewriteBodySize)
	}

	if args := strings.Fields(c.OpenTracing); len(args) > 0 {
		if _, err := tracing.InitTracer(args); err != nil {
			return fmt.Errorf("invalid opentracing arguments: %w", err)
		}
	}

	if c.LandingLabel == "" || strings.Contains(c.LandingLabel, ".") {
		return fmt.Errorf("invalid landing label: %q", c.LandingLabel)
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.HistogramMetricBuckets, _ = c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets)

	return nil
}

func (c *Config) ToOptions() subgate.Options {
	return subgate.Options{
		// generic:
		Address:           c.Address,
		SupportListener:   c.SupportListener,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		ShutdownTimeout:   c.ShutdownTimeout,

		// proxy protocol:
		EnableProxyProtocol:         c.EnableProxyProtocol,
		ProxyProtocolAllowListCIDRs: c.ProxyProtocolAllowListCIDRs.values,
		ProxyProtocolSkipListCIDRs:  c.ProxyProtocolSkipListCIDRs.values,
		ProxyProtocolDenyListCIDRs:  c.ProxyProtocolDenyListCIDRs.values,

		// gateway:
		LandingLabel:       c.LandingLabel,
		UpstreamTimeout:    c.UpstreamTimeout,
		MaxRewriteBodySize: c.MaxRewriteBodySize,
		Insecure:           c.Insecure,
		AllowedMethods:     c.AllowedMethods.values,
		CDNSuffixes:        c.CDNSuffixes.values,

		// safety:
		RequestHeaderBlocklist:  c.RequestHeaderBlocklist.values,
		ResponseHeaderBlocklist: c.ResponseHeaderBlocklist.values,
		BlockPrivateTargets:     c.BlockPrivateTargets,
		BlockedCIDRs:            c.BlockedCIDRs.values,

		// logging:
		ApplicationLogLevel:       c.ApplicationLogLevel,
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,

		// metrics:
		EnableRuntimeMetrics:   c.EnableRuntimeMetrics,
		HistogramMetricBuckets: c.HistogramMetricBuckets,

		// tracing:
		OpenTracing:                         strings.Fields(c.OpenTracing),
		OpenTracingInitialSpan:              c.OpenTracingInitialSpan,
		OpenTracingExcludedProxyTags:        c.OpenTracingExcludedProxyTags.values,
		OpenTracingLogFilterLifecycleEvents: c.OpentracingLogFilterLifecycleEvents,
		OpenTracingLogStreamEvents:          c.OpentracingLogStreamEvents,
	}
}

func (c *Config) parseHistogramBuckets(bucketString string, defaultBuckets []float64) ([]float64, error) {
	if bucketString == "" {
		return defaultBuckets, nil
	}

	var result []float64
	thresholds := strings.Split(bucketString, ",")
	for _, v := range thresholds {
		bucket, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse histogram-metric-buckets: %w", err)
		}
		result = append(result, bucket)
	}
	sort.Float64s(result)
	return result, nil
}
