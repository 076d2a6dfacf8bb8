package template

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

// FieldKind is the value type of a template field.
type FieldKind string

const (
	KindNumber  FieldKind = "number"
	KindText    FieldKind = "text"
	KindOptions FieldKind = "options"
)

func (k FieldKind) Valid() bool {
	switch k {
	case KindNumber, KindText, KindOptions:
		return true
	}
	return false
}

// TemplateField describes one named value of a result.
type TemplateField struct {
	Name           string    `json:"name"`
	Kind           FieldKind `json:"kind"`
	Unit           string    `json:"unit,omitempty"`
	ReferenceRange string    `json:"reference_range,omitempty"`
	Options        []string  `json:"options,omitempty"`
	Required       bool      `json:"required,omitempty"`
}

// ResultTemplate defines the shape of result data for a test type. Built-in
// templates use stable slug ids; custom templates use UUIDs.
type ResultTemplate struct {
	ID                       string          `db:"id" json:"id"`
	Name                     string          `db:"name" json:"name"`
	Category                 string          `db:"category" json:"category"`
	Fields                   []TemplateField `db:"fields" json:"fields"`
	InterpretationGuidelines string          `db:"interpretation_guidelines" json:"interpretation_guidelines,omitempty"`
	BuiltIn                  bool            `db:"-" json:"built_in"`
	CreatedBy                string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
}

// Field returns the field with the given name.
func (t *ResultTemplate) Field(name string) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return TemplateField{}, false
}

// RangeFlag marks a numeric value against its reference range.
type RangeFlag string

const (
	FlagLow    RangeFlag = "low"
	FlagNormal RangeFlag = "normal"
	FlagHigh   RangeFlag = "high"
)

var rangePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*$`)

// ParseRange parses a "<min>-<max>" reference range.
func ParseRange(s string) (min, max float64, err error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("reference range %q must look like <min>-<max>", s)
	}
	min, _ = strconv.ParseFloat(m[1], 64)
	max, _ = strconv.ParseFloat(m[2], 64)
	if min > max {
		return 0, 0, fmt.Errorf("reference range %q has min greater than max", s)
	}
	return min, max, nil
}

// Validate checks a custom template definition.
func (t *ResultTemplate) Validate() error {
	ve := &apperr.ValidationError{}
	if strings.TrimSpace(t.Name) == "" {
		ve.Add("name", "required")
	} else if IsBuiltInID(Slug(t.Name)) {
		ve.Add("name", "collides with a built-in template")
	}
	if len(t.Fields) == 0 {
		ve.Add("fields", "at least one field is required")
	}

	seen := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		key := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(f.Name)
		if name == "" {
			ve.Add(key+".name", "required")
			continue
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			ve.Add(key+".name", fmt.Sprintf("duplicate field name %q", name))
		}
		seen[lower] = true

		if !f.Kind.Valid() {
			ve.Add(key+".kind", "must be number, text or options")
			continue
		}
		if f.Kind == KindOptions && len(f.Options) == 0 {
			ve.Add(key+".options", "options field needs at least one option")
		}
		if f.ReferenceRange != "" {
			if _, _, err := ParseRange(f.ReferenceRange); err != nil {
				ve.Add(key+".reference_range", err.Error())
			}
		}
	}
	return ve.OrNil()
}

// ValidateValues checks entered values against the template. Numeric fields
// must parse, option fields must match a declared option exactly, required
// fields must be present. Out-of-range numbers are not errors.
func ValidateValues(t *ResultTemplate, values map[string]string) error {
	ve := &apperr.ValidationError{}
	for name := range values {
		if _, ok := t.Field(name); !ok {
			ve.Add(name, "unknown field for template "+t.ID)
		}
	}
	for _, f := range t.Fields {
		v, present := values[f.Name]
		v = strings.TrimSpace(v)
		if !present || v == "" {
			if f.Required {
				ve.Add(f.Name, "required")
			}
			continue
		}
		switch f.Kind {
		case KindNumber:
			if _, err := parseNumber(v); err != nil {
				ve.Add(f.Name, fmt.Sprintf("%q is not a number", v))
			}
		case KindOptions:
			if !contains(f.Options, v) {
				ve.Add(f.Name, fmt.Sprintf("%q is not one of %s", v, strings.Join(f.Options, ", ")))
			}
		}
	}
	return ve.OrNil()
}

// Flags compares numeric values with their reference ranges. Fields without
// a range or a parseable value are omitted.
func Flags(t *ResultTemplate, values map[string]string) map[string]RangeFlag {
	flags := make(map[string]RangeFlag)
	for _, f := range t.Fields {
		if f.Kind != KindNumber || f.ReferenceRange == "" {
			continue
		}
		v, err := parseNumber(strings.TrimSpace(values[f.Name]))
		if err != nil {
			continue
		}
		lo, hi, err := ParseRange(f.ReferenceRange)
		if err != nil {
			continue
		}
		switch {
		case v < lo:
			flags[f.Name] = FlagLow
		case v > hi:
			flags[f.Name] = FlagHigh
		default:
			flags[f.Name] = FlagNormal
		}
	}
	return flags
}

var errNotDecimal = errors.New("not a finite decimal number")

// parseNumber accepts finite decimal numbers only. Hex floats, NaN and
// infinities are rejected even though strconv parses them.
func parseNumber(v string) (float64, error) {
	if strings.ContainsAny(v, "xXpP_") {
		return 0, errNotDecimal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotDecimal
	}
	return f, nil
}

// Slug lower-cases a display name and joins its words with hyphens.
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
