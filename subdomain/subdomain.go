/*
Package subdomain implements the mapping between a gateway host label and
the real DNS name it stands for.

A target host like aaa.bb.com is carried in the first label of a gateway
host by replacing every dot with a double hyphen:

	aaa.bb.com  <->  aaa--bb--com.gateway.tld

Single hyphens inside a label are kept as they are, which is why a label
may not start or end with one: "a---b" would be ambiguous.
*/
package subdomain

import (
	"errors"
	"regexp"
	"strings"
)

// Delimiter replaces the dots of the target host in the encoded label.
const Delimiter = "--"

var (
	// ErrInvalidLabel is returned when an encoded label does not decode
	// to a host with at least two valid DNS labels.
	ErrInvalidLabel = errors.New("invalid encoded label")

	// ErrInvalidHost is returned when a host name contains characters
	// that cannot be carried in a gateway label.
	ErrInvalidHost = errors.New("invalid host name")

	labelPart    = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	hostChars    = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
	standardHost = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
)

// Decode turns an encoded label into the host name it represents.
func Decode(label string) (string, error) {
	parts := strings.Split(label, Delimiter)
	if len(parts) < 2 {
		return "", ErrInvalidLabel
	}

	for _, p := range parts {
		if p == "" || !labelPart.MatchString(p) || p[0] == '-' || p[len(p)-1] == '-' {
			return "", ErrInvalidLabel
		}
	}

	return strings.Join(parts, "."), nil
}

// Encode turns a host name into a label that can be used as the first
// label of a gateway host.
func Encode(host string) (string, error) {
	if host == "" || !hostChars.MatchString(host) {
		return "", ErrInvalidHost
	}

	return strings.ReplaceAll(host, ".", Delimiter), nil
}

// IsStandard tells whether host looks like an ordinary, not yet encoded,
// domain name: it contains a dot, consists only of hostname characters and
// does not contain the delimiter.
func IsStandard(host string) bool {
	return strings.Contains(host, ".") &&
		standardHost.MatchString(host) &&
		!strings.Contains(host, Delimiter)
}

// SplitHost splits a gateway host[:port] into its first label and the
// rest, the base domain. The port, if any, stays with the base domain.
// The second return value is false when host has a single label.
func SplitHost(host string) (label, base string, ok bool) {
	label, base, ok = strings.Cut(host, ".")
	if !ok || label == "" || base == "" {
		return "", "", false
	}

	return label, base, true
}

// GatewayHost returns the gateway host name that serves target under
// base, e.g. ("x.b.com", "gw.tld") -> "x--b--com.gw.tld".
func GatewayHost(target, base string) (string, error) {
	label, err := Encode(target)
	if err != nil {
		return "", err
	}

	return label + "." + base, nil
}
