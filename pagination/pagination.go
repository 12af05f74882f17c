// Package pagination parses page/limit query parameters for list
// endpoints.
//
// With PolicyCoerce out-of-range or malformed values fall back to the
// nearest valid value. With PolicyReject they fail with ErrInvalidPage or
// ErrInvalidLimit.
package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultPage is used when no page is given.
	DefaultPage = 1
	// DefaultLimit is used when no limit is given.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 100
	// MaxPage caps the page number so Offset cannot overflow an int.
	MaxPage = math.MaxInt / MaxLimit
)

var (
	// ErrInvalidPage is returned under PolicyReject for a page that is not
	// an integer in [1, MaxPage].
	ErrInvalidPage = fmt.Errorf("pagination: page must be an integer between 1 and %d", MaxPage)
	// ErrInvalidLimit is returned under PolicyReject for a limit that is not
	// an integer in [1, MaxLimit].
	ErrInvalidLimit = fmt.Errorf("pagination: limit must be an integer between 1 and %d", MaxLimit)
)

// Policy decides how invalid input is handled.
type Policy int

const (
	// PolicyCoerce replaces invalid values with defaults or bounds.
	PolicyCoerce Policy = iota
	// PolicyReject fails on invalid values.
	PolicyReject
)

// ParsePolicy maps "coerce" or "reject" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "coerce":
		return PolicyCoerce, nil
	case "reject":
		return PolicyReject, nil
	}
	return PolicyCoerce, fmt.Errorf("pagination: unknown policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "coerce"
}

// Request is a validated page request.
type Request struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int { return (r.Page - 1) * r.Limit }

// Response is one page of items.
type Response[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// NewResponse builds a Response for req. A nil items slice is encoded as
// an empty array.
func NewResponse[T any](req Request, items []T, total int64) Response[T] {
	if items == nil {
		items = []T{}
	}
	return Response[T]{Items: items, Page: req.Page, Limit: req.Limit, Total: total}
}

// Parse validates raw page and limit strings. Empty strings select the
// defaults under either policy.
func Parse(pageStr, limitStr string, policy Policy) (Request, error) {
	page, err := parseField(pageStr, DefaultPage, 1, MaxPage, policy, ErrInvalidPage)
	if err != nil {
		return Request{}, err
	}
	limit, err := parseField(limitStr, DefaultLimit, 1, MaxLimit, policy, ErrInvalidLimit)
	if err != nil {
		return Request{}, err
	}
	return Request{Page: page, Limit: limit}, nil
}

// parseField parses one value into [lower, upper].
func parseField(raw string, def, lower, upper int, policy Policy, invalid error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		if policy == PolicyReject {
			return 0, fmt.Errorf("%w: %q", invalid, raw)
		}
		return def, nil
	}

	switch {
	case n < lower:
		if policy == PolicyReject {
			return 0, fmt.Errorf("%w: %d", invalid, n)
		}
		return lower, nil
	case n > upper:
		if policy == PolicyReject {
			return 0, fmt.Errorf("%w: %d", invalid, n)
		}
		return upper, nil
	}
	return n, nil
}
