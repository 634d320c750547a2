/*
Package tracing creates the opentracing tracer of the gateway from the
-opentracing command line argument.

The argument is a space separated list, the first item selects the
tracer implementation and the rest are passed to it as options:

	-opentracing noop
	-opentracing "basic sample-modulo=10 max-logs-per-span=20"

The noop tracer discards the spans. The basic tracer records the finished
spans to the application log, and is meant for local debugging:

	drop-all-logs        do not record the span logs
	sample-modulo=N      record only every Nth trace, default 1
	max-logs-per-span=N  limit the number of recorded span logs, 0 means no limit
*/
package tracing

import (
	"errors"
	"fmt"

	ot "github.com/opentracing/opentracing-go"
)

var (
	// ErrUnsupportedTracer is returned when an unknown tracer was
	// requested.
	ErrUnsupportedTracer = errors.New("invalid argument, not a supported tracer")

	// ErrMissingArguments is returned when the argument list is empty.
	ErrMissingArguments = errors.New("no arguments passed")
)

// InitTracer returns the tracer selected by the first item of opts.
func InitTracer(opts []string) (ot.Tracer, error) {
	if len(opts) == 0 {
		return nil, ErrMissingArguments
	}

	impl, opts := opts[0], opts[1:]
	switch impl {
	case "noop":
		return &ot.NoopTracer{}, nil
	case "basic":
		return initBasicTracer(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTracer, impl)
	}
}
