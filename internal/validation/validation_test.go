package validation

import (
	"strings"
	"testing"

	"github.com/formbase/formbase/internal/schema"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func contactSchema() *schema.DataSource {
	return &schema.DataSource{
		ID: "ds_contacts0001",
		Fields: []schema.Field{
			{
				Name: "name", Type: schema.FieldString, Label: "Name",
				Validation: &schema.Validation{Required: true, MinLength: intPtr(3)},
			},
			{
				Name: "score", Type: schema.FieldNumber, Label: "Score",
				Validation: &schema.Validation{Required: true, Min: floatPtr(0), Max: floatPtr(10)},
			},
		},
	}
}

func TestCheckValidRecord(t *testing.T) {
	errs := Check(contactSchema(), map[string]any{"name": "Ada", "score": 7})
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestCheckCompleteErrorList(t *testing.T) {
	// Both fields violate a rule; both messages come back, in field order.
	errs := Check(contactSchema(), map[string]any{"name": "ab", "score": 15})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0], "Name") || !strings.Contains(errs[0], "at least 3") {
		t.Errorf("first error = %q, want Name length violation", errs[0])
	}
	if !strings.Contains(errs[1], "Score") || !strings.Contains(errs[1], "at most 10") {
		t.Errorf("second error = %q, want Score range violation", errs[1])
	}
}

func TestCheckRequiredShortCircuit(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "email", Type: schema.FieldString, Label: "Email",
			Validation: &schema.Validation{Required: true, Pattern: `^[^@]+@[^@]+$`},
		}},
	}

	errs := Check(ds, map[string]any{})
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0] != "Email is required" {
		t.Errorf("error = %q, want %q", errs[0], "Email is required")
	}
}

func TestCheckRequiredTreatsEmptyStringAsAbsent(t *testing.T) {
	ds := contactSchema()
	errs := Check(ds, map[string]any{"name": "", "score": 5})
	if len(errs) != 1 || errs[0] != "Name is required" {
		t.Errorf("errors = %v, want single required error", errs)
	}
}

func TestCheckOptionalFieldSkippedWhenAbsent(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "nick", Type: schema.FieldString, Label: "Nickname",
			Validation: &schema.Validation{MinLength: intPtr(2)},
		}},
	}
	if errs := Check(ds, map[string]any{}); len(errs) != 0 {
		t.Errorf("expected no errors for absent optional field, got %v", errs)
	}
}

func TestCheckNumeric(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "age", Type: schema.FieldNumber, Label: "Age",
			Validation: &schema.Validation{Min: floatPtr(18)},
		}},
	}

	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"valid int", 30, nil},
		{"valid numeric string", "42", nil},
		{"not a number", "forty", []string{"Age must be numeric"}},
		{"below min", 12, []string{"Age must be at least 18"}},
		{"below min as string", "12", []string{"Age must be at least 18"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Check(ds, map[string]any{"age": tt.value})
			if len(errs) != len(tt.want) {
				t.Fatalf("errors = %v, want %v", errs, tt.want)
			}
			for i := range tt.want {
				if errs[i] != tt.want[i] {
					t.Errorf("errors[%d] = %q, want %q", i, errs[i], tt.want[i])
				}
			}
		})
	}
}

func TestCheckMaxLength(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "code", Type: schema.FieldString, Label: "Code",
			Validation: &schema.Validation{MaxLength: intPtr(4)},
		}},
	}
	errs := Check(ds, map[string]any{"code": "toolong"})
	if len(errs) != 1 || errs[0] != "Code must be at most 4 characters" {
		t.Errorf("errors = %v", errs)
	}
}

func TestCheckPattern(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "email", Type: schema.FieldString, Label: "Email",
			Validation: &schema.Validation{Pattern: `^[^@]+@[^@]+$`},
		}},
	}

	if errs := Check(ds, map[string]any{"email": "a@b.com"}); len(errs) != 0 {
		t.Errorf("valid email rejected: %v", errs)
	}
	errs := Check(ds, map[string]any{"email": "not-an-email"})
	if len(errs) != 1 || errs[0] != "Email has invalid format" {
		t.Errorf("errors = %v, want format error", errs)
	}
}

func TestCheckBadPatternDoesNotPenalizeValue(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "x", Type: schema.FieldString, Label: "X",
			Validation: &schema.Validation{Pattern: `([`},
		}},
	}
	if errs := Check(ds, map[string]any{"x": "anything"}); len(errs) != 0 {
		t.Errorf("uncompilable pattern produced errors: %v", errs)
	}
}

func TestCheckLabelFallsBackToFieldName(t *testing.T) {
	ds := &schema.DataSource{
		Fields: []schema.Field{{
			Name: "email", Type: schema.FieldString,
			Validation: &schema.Validation{Required: true},
		}},
	}
	errs := Check(ds, map[string]any{})
	if len(errs) != 1 || errs[0] != "email is required" {
		t.Errorf("errors = %v", errs)
	}
}

func TestCheckPartialSkipsAbsentFields(t *testing.T) {
	max := 10.0
	ds := &schema.DataSource{
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldString, Label: "Name",
				Validation: &schema.Validation{Required: true}},
			{Name: "qty", Type: schema.FieldNumber, Label: "Quantity",
				Validation: &schema.Validation{Max: &max}},
		},
	}

	if errs := CheckPartial(ds, map[string]any{"qty": 5}); len(errs) != 0 {
		t.Errorf("errors = %v, want none when required field absent", errs)
	}
	if errs := CheckPartial(ds, map[string]any{"qty": 15}); len(errs) != 1 || errs[0] != "Quantity must be at most 10" {
		t.Errorf("errors = %v, want max violation", errs)
	}
	if errs := CheckPartial(ds, map[string]any{"name": ""}); len(errs) != 1 || errs[0] != "Name is required" {
		t.Errorf("errors = %v, want required violation for explicit empty", errs)
	}
}
