// Package schema provides the field policy a record must satisfy before it
// is stored.
package schema

import (
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefaultFields are the fields every record needs unless configured otherwise.
var DefaultFields = []string{"title", "content"}

// Policy maps field names to validator tags (e.g. "required" or
// "required,max=200"). A field whose value fails its tag counts as missing.
type Policy struct {
	rules map[string]any
}

// New builds a Policy from field -> validator tag pairs.
func New(rules map[string]string) *Policy {
	p := &Policy{rules: make(map[string]any, len(rules))}
	for field, tag := range rules {
		p.rules[field] = tag
	}
	return p
}

// Required returns a Policy where each named field must be present and non-zero.
// An empty string, nil, or absent key all fail.
func Required(fields ...string) *Policy {
	rules := make(map[string]string, len(fields))
	for _, f := range fields {
		rules[f] = "required"
	}
	return New(rules)
}

// Default returns the title/content policy.
func Default() *Policy {
	return Required(DefaultFields...)
}

// Fields returns the policy's field names, sorted.
func (p *Policy) Fields() []string {
	names := make([]string, 0, len(p.rules))
	for f := range p.rules {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Missing returns the sorted names of fields in doc that fail the policy.
// A nil doc is treated as empty.
func (p *Policy) Missing(doc map[string]any) []string {
	if len(p.rules) == 0 {
		return nil
	}
	if doc == nil {
		doc = map[string]any{}
	}
	errs := validate.ValidateMap(doc, p.rules)
	if len(errs) == 0 {
		return nil
	}
	missing := make([]string, 0, len(errs))
	for field := range errs {
		missing = append(missing, field)
	}
	sort.Strings(missing)
	return missing
}
