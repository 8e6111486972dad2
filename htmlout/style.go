// Package htmlout writes the HTML text layer, its stylesheet and the
// document around the pages.
package htmlout

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// Class kinds interned by the style table.
const (
	KindFont      = "ff"
	KindSize      = "fs"
	KindColor     = "fc"
	KindTransform = "m"
)

// Rule is one class and its declarations.
type Rule struct {
	Class string
	Decl  string
}

func (r Rule) String() string { return "." + r.Class + "{" + r.Decl + "}" }

// StyleTable interns CSS declarations into short class names, numbered per
// kind in first-use order. Pages are emitted in page order, so class names
// are stable across runs.
type StyleTable struct {
	mu      sync.Mutex
	classes map[string]string
	next    map[string]int
	rules   []Rule
}

func NewStyleTable() *StyleTable {
	return &StyleTable{classes: make(map[string]string), next: make(map[string]int)}
}

// Class returns the class for a declaration of the given kind; fresh is
// set when this call created it.
func (t *StyleTable) Class(kind, key, decl string) (class string, fresh bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := kind + "\x00" + key
	if c, ok := t.classes[k]; ok {
		return c, false
	}
	c := kind + strconv.Itoa(t.next[kind])
	t.next[kind]++
	t.classes[k] = c
	t.rules = append(t.rules, Rule{Class: c, Decl: decl})
	return c, true
}

// Rules returns every rule in creation order.
func (t *StyleTable) Rules() []Rule {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Rule(nil), t.rules...)
}

// num formats a CSS number, rounded to precision decimals when precision
// is not negative.
func num(v float64, precision int) string {
	if precision >= 0 {
		p := math.Pow(10, float64(precision))
		v = math.Round(v*p) / p
	}
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func px(v float64, precision int) string {
	s := num(v, precision)
	if s == "0" {
		return s
	}
	return s + "px"
}

// baseCSS is shared by every document.
const baseCSS = `.pf{position:relative;overflow:hidden;margin:0 auto 13px;background:#fff;box-shadow:0 0 2px #888}
.bi{position:absolute;left:0;top:0;border:0;margin:0;-webkit-user-select:none;user-select:none}
.t{position:absolute;margin:0;padding:0;white-space:pre;transform-origin:0 0;unicode-bidi:bidi-override}
._{display:inline-block;white-space:pre}
.tr{color:transparent!important}
.ov{position:absolute;border:0;pointer-events:none;-webkit-user-select:none;user-select:none}
#outline ul{list-style:none;padding-left:1em}
`

const printCSS = `@media print{body{margin:0}.pf{margin:0;box-shadow:none;break-after:page}}
`

func stylesheet(printing bool, parts ...string) string {
	var b strings.Builder
	b.WriteString(baseCSS)
	if printing {
		b.WriteString(printCSS)
	}
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.String()
}
