package echo

import (
	"strings"

	"github.com/munnerz/goautoneg"
)

// The media types a Snapshot can be rendered as, in priority order.
const (
	MIMEJSON = "application/json"
	MIMEHTML = "text/html"
)

// preference is how well one media range of an Accept header matches a
// candidate type.
type preference struct {
	q           float64
	specificity int
	index       int
	matched     bool
}

func (p preference) acceptable() bool {
	return p.matched && p.q > 0
}

// better reports whether p beats o on quality, then specificity, then the
// position of its range in the header. Matches through the same range are
// not better than each other.
func (p preference) better(o preference) bool {
	if !p.acceptable() {
		return false
	}
	if !o.acceptable() {
		return true
	}
	if p.q != o.q {
		return p.q > o.q
	}
	if p.specificity != o.specificity {
		return p.specificity > o.specificity
	}
	return p.index < o.index
}

// Negotiate picks MIMEJSON or MIMEHTML for an Accept header value. JSON is
// preferred unless HTML beats it, so a shared range such as */* yields JSON.
// A missing, unparseable or non-matching header yields HTML.
func Negotiate(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return MIMEHTML
	}

	ranges := make([]goautoneg.Accept, 0, 4)
	for _, part := range strings.Split(accept, ",") {
		// one range at a time keeps header order, ParseAccept sorts by q
		parsed := goautoneg.ParseAccept(part)
		if len(parsed) == 0 {
			continue
		}
		ranges = append(ranges, parsed[0])
	}

	json, html := preferenceFor(ranges, MIMEJSON), preferenceFor(ranges, MIMEHTML)
	if json.acceptable() && !html.better(json) {
		return MIMEJSON
	}
	return MIMEHTML
}

// preferenceFor finds the most specific range matching mime; its q value is
// the one that applies (RFC 9110, section 12.5.1).
func preferenceFor(ranges []goautoneg.Accept, mime string) preference {
	typ, sub, _ := strings.Cut(mime, "/")

	best := preference{}
	for i, r := range ranges {
		rt, rs := strings.ToLower(r.Type), strings.ToLower(r.SubType)
		var specificity int
		switch {
		case rt == typ && rs == sub:
			specificity = 2
		case rt == typ && rs == "*":
			specificity = 1
		case rt == "*" && rs == "*":
			specificity = 0
		default:
			continue
		}
		if !best.matched || specificity > best.specificity {
			best = preference{q: r.Q, specificity: specificity, index: i, matched: true}
		}
	}
	return best
}
