// Package rewrite maps request paths onto destination URLs using path
// patterns with named parameters, e.g. "/api/:path*" -> "https://backend/:path*".
//
// A pattern is a sequence of "/"-separated segments. Each segment is either a
// literal, ":name" (exactly one non-empty segment), ":name*" (zero or more
// segments) or ":name+" (one or more segments). Multi-segment parameters must
// be the last segment. Matching works on the escaped path, so percent-encoded
// characters such as %2F survive the rewrite untouched.
package rewrite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPattern is returned when a source or destination pattern cannot be parsed.
var ErrInvalidPattern = errors.New("invalid rewrite pattern")

type segmentKind int

const (
	literal segmentKind = iota
	single
	zeroOrMore
	oneOrMore
)

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
}

// Rule rewrites paths matching Source onto Destination.
type Rule struct {
	source      []segment
	destination []segment

	// scheme and host are empty when the destination is a bare path.
	scheme string
	host   string

	raw string
}

// Parse compiles a source pattern and a destination template. The destination
// may be an absolute http(s) URL or a path; it can only reference parameters
// declared by the source.
func Parse(source, destination string) (Rule, error) {
	src, err := parsePattern(source)
	if err != nil {
		return Rule{}, fmt.Errorf("source %q: %w", source, err)
	}

	params := make(map[string]struct{}, len(src))
	for _, seg := range src {
		if seg.kind == literal {
			continue
		}
		if _, dup := params[seg.value]; dup {
			return Rule{}, fmt.Errorf("source %q: %w: duplicate parameter %q", source, ErrInvalidPattern, seg.value)
		}
		params[seg.value] = struct{}{}
	}

	scheme, host, pathTemplate, err := splitDestination(destination)
	if err != nil {
		return Rule{}, fmt.Errorf("destination %q: %w", destination, err)
	}
	dst, err := parsePattern(pathTemplate)
	if err != nil {
		return Rule{}, fmt.Errorf("destination %q: %w", destination, err)
	}
	for _, seg := range dst {
		if seg.kind == literal {
			continue
		}
		if _, ok := params[seg.value]; !ok {
			return Rule{}, fmt.Errorf("destination %q: %w: unknown parameter %q", destination, ErrInvalidPattern, seg.value)
		}
	}

	return Rule{
		source:      src,
		destination: dst,
		scheme:      scheme,
		host:        host,
		raw:         source + " -> " + destination,
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(source, destination string) Rule {
	rule, err := Parse(source, destination)
	if err != nil {
		panic(err)
	}
	return rule
}

// String returns the rule in "source -> destination" form.
func (r Rule) String() string {
	return r.raw
}

// Apply rewrites an escaped request path. It reports false when the path does
// not match the source pattern.
func (r Rule) Apply(escapedPath string) (string, bool) {
	values, ok := r.match(escapedPath)
	if !ok {
		return "", false
	}

	parts := make([]string, 0, len(r.destination))
	for _, seg := range r.destination {
		if seg.kind == literal {
			parts = append(parts, seg.value)
			continue
		}
		if value := values[seg.value]; value != "" {
			parts = append(parts, value)
		}
	}
	return "/" + strings.Join(parts, "/"), true
}

// Target returns the outbound URL for an incoming request URL. The incoming
// query string is carried over.
func (r Rule) Target(in *url.URL) (*url.URL, bool) {
	escaped, ok := r.Apply(in.EscapedPath())
	if !ok {
		return nil, false
	}

	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, false
	}

	out := &url.URL{
		Scheme:   r.scheme,
		Host:     r.host,
		Path:     unescaped,
		RawQuery: in.RawQuery,
	}
	if unescaped != escaped {
		out.RawPath = escaped
	}
	return out, true
}

func (r Rule) match(escapedPath string) (map[string]string, bool) {
	if !strings.HasPrefix(escapedPath, "/") {
		return nil, false
	}
	parts := strings.Split(escapedPath[1:], "/")
	values := make(map[string]string)

	for i, seg := range r.source {
		switch seg.kind {
		case literal:
			if i >= len(parts) || parts[i] != seg.value {
				return nil, false
			}
		case single:
			if i >= len(parts) || parts[i] == "" {
				return nil, false
			}
			values[seg.value] = parts[i]
		case zeroOrMore, oneOrMore:
			rest := ""
			if i < len(parts) {
				rest = strings.Join(parts[i:], "/")
			}
			if seg.kind == oneOrMore && rest == "" {
				return nil, false
			}
			values[seg.value] = rest
			return values, true
		}
	}

	if len(parts) != len(r.source) {
		return nil, false
	}
	return values, true
}

// splitDestination separates an absolute destination into scheme, host and
// path template. Bare paths are returned unchanged.
func splitDestination(destination string) (scheme, host, path string, err error) {
	if strings.ContainsAny(destination, "?#") {
		return "", "", "", fmt.Errorf("%w: query and fragment are not supported", ErrInvalidPattern)
	}
	if strings.HasPrefix(destination, "/") {
		return "", "", destination, nil
	}

	idx := strings.Index(destination, "://")
	if idx < 0 {
		return "", "", "", fmt.Errorf("%w: destination must be a path or an absolute URL", ErrInvalidPattern)
	}
	rest := destination[idx+3:]
	origin := destination
	path = "/"
	if slash := strings.Index(rest, "/"); slash >= 0 {
		origin = destination[:idx+3+slash]
		path = rest[slash:]
	}

	u, perr := url.Parse(origin)
	if perr != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidPattern, perr)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", "", fmt.Errorf("%w: destination must use http or https", ErrInvalidPattern)
	}
	return u.Scheme, u.Host, path, nil
}

func parsePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: pattern must start with /", ErrInvalidPattern)
	}
	raw := strings.Split(pattern[1:], "/")
	segments := make([]segment, 0, len(raw))
	for i, part := range raw {
		if !strings.HasPrefix(part, ":") {
			if part == "" && i != len(raw)-1 {
				return nil, fmt.Errorf("%w: empty segment", ErrInvalidPattern)
			}
			segments = append(segments, segment{kind: literal, value: part})
			continue
		}

		name := part[1:]
		kind := single
		switch {
		case strings.HasSuffix(name, "*"):
			kind = zeroOrMore
			name = strings.TrimSuffix(name, "*")
		case strings.HasSuffix(name, "+"):
			kind = oneOrMore
			name = strings.TrimSuffix(name, "+")
		}
		if !validName(name) {
			return nil, fmt.Errorf("%w: bad parameter name %q", ErrInvalidPattern, part)
		}
		if kind != single && i != len(raw)-1 {
			return nil, fmt.Errorf("%w: %q must be the last segment", ErrInvalidPattern, part)
		}
		segments = append(segments, segment{kind: kind, value: name})
	}
	return segments, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
