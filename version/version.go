// Package version converts store versions to HTTP entity-tags and back.
//
// A token has the form W/"<micros>". If-Match may list several tokens; they
// parse into a Set, and a conditional write succeeds when the stored version
// is any member of it.
package version

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

// ErrMalformed is returned for If-Match values that are not a list of
// entity-tags produced by Format.
var ErrMalformed = fmt.Errorf("%w: malformed version token", interfaces.ErrInvalidInput)

// Set is the acceptable version set of a conditional request.
type Set struct {
	versions []int64
}

// NewSet builds a set from known versions.
func NewSet(versions ...int64) Set {
	s := Set{}
	for _, v := range versions {
		if !s.Contains(v) {
			s.versions = append(s.versions, v)
		}
	}
	return s
}

// Contains reports whether v is acceptable.
func (s Set) Contains(v int64) bool {
	for _, candidate := range s.versions {
		if candidate == v {
			return true
		}
	}
	return false
}

// Versions returns the members in header order.
func (s Set) Versions() []int64 {
	return append([]int64(nil), s.versions...)
}

// Empty reports whether the set has no members.
func (s Set) Empty() bool {
	return len(s.versions) == 0
}

// Format renders a version as a weak entity-tag.
func Format(v int64) string {
	return `W/"` + strconv.FormatInt(v, 10) + `"`
}

// Parse reads a comma-separated If-Match value. An empty header yields
// ErrPreconditionMissing; the wildcard and anything not produced by Format
// yield ErrMalformed.
func Parse(header string) (Set, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Set{}, interfaces.ErrPreconditionMissing
	}

	var versions []int64
	for _, part := range strings.Split(header, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		v, err := parseToken(token)
		if err != nil {
			return Set{}, err
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return Set{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	return NewSet(versions...), nil
}

func parseToken(token string) (int64, error) {
	token = strings.TrimPrefix(token, "W/")
	if len(token) < 2 || token[0] != '"' || token[len(token)-1] != '"' {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	v, err := strconv.ParseInt(token[1:len(token)-1], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	return v, nil
}

// FromRequest parses all If-Match headers of r.
func FromRequest(r *http.Request) (Set, error) {
	return Parse(strings.Join(r.Header.Values("If-Match"), ","))
}

// SetETag writes the entity-tag of v on the response.
func SetETag(w http.ResponseWriter, v int64) {
	w.Header().Set("ETag", Format(v))
}
