package tracing

import (
	"fmt"
	"strconv"
	"strings"

	basic "github.com/opentracing/basictracer-go"
	ot "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
)

// logRecorder writes every finished span as one application log entry.
type logRecorder struct {
	logger log.FieldLogger
}

func (r logRecorder) RecordSpan(s basic.RawSpan) {
	fields := log.Fields{
		"trace_id":  strconv.FormatUint(s.Context.TraceID, 16),
		"span_id":   strconv.FormatUint(s.Context.SpanID, 16),
		"operation": s.Operation,
		"duration":  s.Duration.String(),
		"logs":      len(s.Logs),
	}

	if s.ParentSpanID != 0 {
		fields["parent_span_id"] = strconv.FormatUint(s.ParentSpanID, 16)
	}

	for k, v := range s.Tags {
		fields["tag."+k] = v
	}

	r.logger.WithFields(fields).Info("span finished")
}

func initBasicTracer(opts []string) (ot.Tracer, error) {
	o := basic.DefaultOptions()
	o.Recorder = logRecorder{logger: log.StandardLogger()}
	o.MaxLogsPerSpan = 0

	sampleModulo := uint64(1)
	for _, opt := range opts {
		k, v, _ := strings.Cut(opt, "=")
		switch k {
		case "":
		case "drop-all-logs":
			o.DropAllLogs = true

		case "sample-modulo":
			if v == "" {
				return nil, missingArg(k)
			}

			m, err := strconv.ParseUint(v, 10, 64)
			if err != nil || m == 0 {
				return nil, invalidArg(k, v)
			}

			sampleModulo = m

		case "max-logs-per-span":
			if v == "" {
				return nil, missingArg(k)
			}

			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, invalidArg(k, v)
			}

			o.MaxLogsPerSpan = n

		default:
			return nil, fmt.Errorf("unknown option for the basic tracer: %s", k)
		}
	}

	o.ShouldSample = func(traceID uint64) bool { return traceID%sampleModulo == 0 }
	return basic.NewWithOptions(o), nil
}

func missingArg(opt string) error {
	return fmt.Errorf("missing argument for %s option", opt)
}

func invalidArg(opt, value string) error {
	return fmt.Errorf("invalid argument for %s option: %q", opt, value)
}
