/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mask replaces everything its regexp matches with a replacement string.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask builds a Mask from its configuration. The regexp must be valid.
func NewMask(cfg MaskConfig) Mask {
	return Mask{RegExp: regexp.MustCompile(cfg.RegExp), Mask: cfg.Mask}
}

// FieldMasker hides the value of one named field across the formats it may
// appear in, plus any custom masks of the rule.
type FieldMasker struct {
	Field string // lowercase, "" for rules not tied to a field
	Masks []Mask
}

// NewFieldMasker builds a FieldMasker from a single masking rule.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	masks := make([]Mask, 0, len(cfg.Masks)+len(cfg.Formats))
	for _, mc := range cfg.Masks {
		masks = append(masks, NewMask(mc))
	}
	for _, format := range cfg.Formats {
		if fm, ok := formatMask(cfg.Field, format); ok {
			masks = append(masks, fm)
		}
	}
	return FieldMasker{Field: strings.ToLower(cfg.Field), Masks: masks}
}

// formatMask builds the mask hiding the field's value in the given format.
func formatMask(field string, format FieldMaskFormat) (Mask, bool) {
	var cfg MaskConfig
	switch format {
	case FieldMaskFormatHTTPHeader:
		cfg = MaskConfig{RegExp: `(?i)` + field + `: .+?\r\n`, Mask: field + ": ***\r\n"}
	case FieldMaskFormatJSON:
		cfg = MaskConfig{RegExp: `(?i)"` + field + `"\s*:\s*".*?[^\\]"`, Mask: `"` + field + `": "***"`}
	case FieldMaskFormatURLEncoded:
		cfg = MaskConfig{RegExp: `(?i)` + field + `\s*=\s*[^&\s]+`, Mask: field + "=***"}
	default:
		return Mask{}, false
	}
	return NewMask(cfg), true
}

// Masker hides secrets in strings.
// Field names are matched with an Aho-Corasick automaton first,
// so that the regexps of a rule run only on strings that mention its field.
// Rules without a field name are applied unconditionally.
type Masker struct {
	FieldMasks []FieldMasker

	fieldMatcher *ahocorasick.Matcher
	keyed        []int // maps matcher pattern indices to FieldMasks indices
	unkeyed      []int
}

// NewMasker builds a Masker from the given set of rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	fields := make([][]byte, 0, len(rules))
	for i, rule := range rules {
		fieldMask := NewFieldMasker(rule)
		m.FieldMasks = append(m.FieldMasks, fieldMask)
		if fieldMask.Field == "" {
			m.unkeyed = append(m.unkeyed, i)
			continue
		}
		m.keyed = append(m.keyed, i)
		fields = append(fields, []byte(fieldMask.Field))
	}
	m.fieldMatcher = ahocorasick.NewMatcher(fields)
	return m
}

// Mask hides all secrets in s according to the masker rules.
func (m *Masker) Mask(s string) string {
	for _, idx := range m.unkeyed {
		s = m.FieldMasks[idx].apply(s)
	}
	if len(m.keyed) == 0 {
		return s
	}
	lower := strings.ToLower(s)
	for _, hit := range m.fieldMatcher.Match([]byte(lower)) {
		s = m.FieldMasks[m.keyed[hit]].apply(s)
	}
	return s
}

func (fm FieldMasker) apply(s string) string {
	for _, mask := range fm.Masks {
		s = mask.RegExp.ReplaceAllString(s, mask.Mask)
	}
	return s
}

// DefaultMasks is the default set of masking rules, covering the usual
// credential-bearing HTTP headers and OAuth2 request/response fields.
var DefaultMasks = buildDefaultMasks()

func buildDefaultMasks() []MaskingRuleConfig {
	bodyFormats := []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}
	rules := []MaskingRuleConfig{
		{Field: "Authorization", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader}},
	}
	for _, field := range []string{
		"password", "client_secret", "access_token", "refresh_token", "id_token", "assertion",
	} {
		rules = append(rules, MaskingRuleConfig{Field: field, Formats: bodyFormats})
	}
	return rules
}
