// Package rules implements the filename rule engine (§4.D): a vector of
// {regex, field, template} rules evaluated against a URI, producing
// derived field=value assignments appended to a slot's field-op buffer.
package rules

import (
	"log/slog"
	"regexp"

	"github.com/flowcap/ingest/slot"
	"golang.org/x/text/unicode/norm"
)

// Def is one rule definition as loaded from configuration.
type Def struct {
	Pattern  string // regexp source
	Field    string
	Template string // expansion template, using $1, $name, etc. (regexp.Expand syntax)
}

type compiledRule struct {
	re       *regexp.Regexp
	field    string
	template string
}

// Engine holds an immutable-after-construction set of compiled rules.
type Engine struct {
	rules []compiledRule
	log   *slog.Logger
}

// NewEngine compiles defs once at init. Rules are immutable thereafter.
func NewEngine(defs []Def, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log}
	for _, d := range defs {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiledRule{re: re, field: d.Field, template: d.Template})
	}
	return e, nil
}

// Apply evaluates every rule against uri, appending a FieldOp to buf for
// each match whose template expands successfully. A template-expansion
// error is logged and the rule is dropped — it never aborts evaluation of
// the remaining rules (§4.D).
func (e *Engine) Apply(uri string, buf *slot.FieldOpBuffer) {
	if e == nil || buf == nil {
		return
	}
	// Normalise to NFC before matching/expanding so rules written against
	// composed Unicode forms match URIs that arrived decomposed, the same
	// normalisation backend/local applies to filenames.
	normalized := norm.NFC.String(uri)
	for _, r := range e.rules {
		match := r.re.FindStringSubmatchIndex(normalized)
		if match == nil {
			continue
		}
		expanded := safeExpand(r.re, r.template, normalized, match)
		if expanded == nil {
			e.log.Warn("filename rule template expansion failed", "field", r.field, "pattern", r.re.String())
			continue
		}
		buf.Append(r.field, string(expanded))
	}
}

// safeExpand wraps regexp.Expand, recovering from any panic a malformed
// template could trigger so one bad rule can't take down evaluation of the
// rest.
func safeExpand(re *regexp.Regexp, template, src string, match []int) (out []byte) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return re.ExpandString(nil, template, src, match)
}
