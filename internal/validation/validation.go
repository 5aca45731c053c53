// Package validation checks candidate records against a data source's
// field rules. Check is pure: no storage access, no side effects.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf16"

	"github.com/formbase/formbase/internal/schema"
)

// Check validates record against the data source's fields and returns
// the complete list of human-readable violations, in field order. An
// empty list means the record is valid.
//
// Validation is batch, not fail-fast: every applicable rule runs so a
// form UI can show all problems at once. The only short-circuit is per
// field: a missing required value suppresses that field's other checks.
func Check(ds *schema.DataSource, record map[string]any) []string {
	var errs []string
	for i := range ds.Fields {
		errs = append(errs, checkField(&ds.Fields[i], record)...)
	}
	return errs
}

// CheckPartial validates only the fields present in changes, for
// partial updates. A required field that is absent from changes passes;
// one that is present but empty does not.
func CheckPartial(ds *schema.DataSource, changes map[string]any) []string {
	var errs []string
	for i := range ds.Fields {
		if _, present := changes[ds.Fields[i].Name]; !present {
			continue
		}
		errs = append(errs, checkField(&ds.Fields[i], changes)...)
	}
	return errs
}

func checkField(f *schema.Field, record map[string]any) []string {
	var errs []string

	value, present := record[f.Name]
	empty := !present || value == nil || value == ""

	if f.Required() && empty {
		return []string{fmt.Sprintf("%s is required", f.DisplayName())}
	}
	if empty {
		return nil
	}

	rules := f.Validation

	switch f.Type {
	case schema.FieldNumber:
		num, ok := toNumber(value)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s must be numeric", f.DisplayName()))
			break
		}
		if rules != nil {
			if rules.Min != nil && num < *rules.Min {
				errs = append(errs, fmt.Sprintf("%s must be at least %v", f.DisplayName(), formatNumber(*rules.Min)))
			}
			if rules.Max != nil && num > *rules.Max {
				errs = append(errs, fmt.Sprintf("%s must be at most %v", f.DisplayName(), formatNumber(*rules.Max)))
			}
		}

	case schema.FieldString:
		if rules != nil {
			length := utf16Length(stringForm(value))
			if rules.MinLength != nil && length < *rules.MinLength {
				errs = append(errs, fmt.Sprintf("%s must be at least %d characters", f.DisplayName(), *rules.MinLength))
			}
			if rules.MaxLength != nil && length > *rules.MaxLength {
				errs = append(errs, fmt.Sprintf("%s must be at most %d characters", f.DisplayName(), *rules.MaxLength))
			}
		}
	}

	if rules != nil && rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		// Uncompilable patterns are a schema-authoring problem, not a
		// data problem; the value is not penalized for them.
		if err == nil && !re.MatchString(stringForm(value)) {
			errs = append(errs, fmt.Sprintf("%s has invalid format", f.DisplayName()))
		}
	}

	return errs
}

// toNumber parses the loosely typed values JSON decoding produces.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringForm(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// utf16Length counts UTF-16 code units, matching the length semantics
// form clients apply to the same bounds.
func utf16Length(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
