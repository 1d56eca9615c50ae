package keys

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
	h3mapper "github.com/mohammed-shakir/poi-cache/internal/mapper/h3"
)

const (
	kindCombined = "combined"
	kindSub      = "sub"

	maxQueryTextLen = 96
	maxTypesTextLen = 64
)

// Builder derives cache keys for requests. The h3 cell of the center is a
// readable grouping prefix; the exact center is always part of the key.
type Builder struct {
	res int
}

func NewBuilder(res int) (*Builder, error) {
	if _, err := h3mapper.New(res); err != nil {
		return nil, err
	}
	return &Builder{res: res}, nil
}

// Combined returns the key of the merged dataset for req.
func (b *Builder) Combined(req model.Request) (string, error) {
	return b.build(req, kindCombined, nil)
}

// Sub returns the key of one sub-query's dataset for req.
func (b *Builder) Sub(req model.Request, sq model.SubQuery) (string, error) {
	n := sq.Normalized()
	return b.build(req, kindSub, &n)
}

func (b *Builder) build(req model.Request, kind string, sq *model.SubQuery) (string, error) {
	cell, err := h3mapper.CellForPoint(req.Lat, req.Lng, b.res)
	if err != nil {
		return "", fmt.Errorf("key cell: %w", err)
	}

	lat := formatCoord(req.Lat)
	lng := formatCoord(req.Lng)
	radius := strconv.FormatFloat(req.Radius, 'f', -1, 64)
	query := normalizeQuery(req.BooleanQuery)
	filters := canonicalFilters(req.Filters)

	// a sub-query result depends only on the area and its type sets, so sub
	// keys leave the expression out and are shared across queries
	var canon strings.Builder
	canon.WriteString("kind=" + kind)
	canon.WriteString("|lat=" + exactCoord(req.Lat) + "|lng=" + exactCoord(req.Lng) + "|r=" + radius)
	if sq == nil {
		canon.WriteString("|q=" + query)
	}
	canon.WriteString("|filters=" + filters)
	if sq != nil {
		canon.WriteString("|inc=" + strings.Join(sq.Included, ","))
		canon.WriteString("|exc=" + strings.Join(sq.Excluded, ","))
	}
	sum := xxhash.Sum64String(canon.String())

	var k strings.Builder
	fmt.Fprintf(&k, "poi:%s:%d:%s:c=%s,%s:r=%s", kind, b.res, cell, lat, lng, radius)
	if sq == nil {
		fmt.Fprintf(&k, ":q=%s", truncate(sanitizeForKey(query), maxQueryTextLen))
	} else {
		fmt.Fprintf(&k, ":inc=%s:exc=%s",
			truncate(sanitizeForKey(strings.Join(sq.Included, "+")), maxTypesTextLen),
			truncate(sanitizeForKey(strings.Join(sq.Excluded, "+")), maxTypesTextLen))
	}
	fmt.Fprintf(&k, ":f=%016x", sum)
	return k.String(), nil
}

// exactCoord is the hashed form: the center the upstream sees, so centers
// that only differ past the readable precision never share a key.
func exactCoord(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatCoord is the readable form used in the key prefix.
func formatCoord(v float64) string {
	if v == 0 {
		v = 0 // folds -0
	}
	return strconv.FormatFloat(v, 'f', 7, 64)
}

func canonicalFilters(f map[string]string) string {
	if len(f) == 0 {
		return ""
	}
	ks := make([]string, 0, len(f))
	for k := range f {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	parts := make([]string, 0, len(ks))
	for _, k := range ks {
		parts = append(parts, strconv.Quote(k)+"="+strconv.Quote(f[k]))
	}
	return strings.Join(parts, ";")
}

var parenSpace = regexp.MustCompile(`\s*([\(\)])\s*`)

func normalizeQuery(s string) string {
	if s == "" {
		return ""
	}
	s = collapseASCIIWhitespace(strings.TrimSpace(s))
	return parenSpace.ReplaceAllString(s, "$1")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '+':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isASCIIWhitespace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isASCIIWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
