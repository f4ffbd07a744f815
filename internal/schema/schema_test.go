package schema

import (
	"regexp"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// statsLikeSchema mirrors the shape of a persisted counter record: some
// required identity fields plus defaultable counters.
func statsLikeSchema() Schema {
	return Schema{
		Name: "session_stats",
		Fields: map[string]Field{
			"session_id": {Type: TypeString, Required: true, MinLength: intPtr(1)},
			"started_at": {Type: TypeString, Required: true},
			"issues_completed": {
				Type: TypeNumber, Required: true, Integer: true, Min: floatPtr(0),
				Default: float64(0), HasDefault: true,
			},
			"gigachad_merges": {
				Type: TypeNumber, Required: true, Integer: true, Min: floatPtr(0),
				Default: float64(0), HasDefault: true,
			},
		},
	}
}

func TestValidateAcceptsValidRecord(t *testing.T) {
	data := map[string]any{
		"session_id":       "session-1",
		"started_at":       "2026-08-25T10:00:00Z",
		"issues_completed": float64(3),
		"gigachad_merges":  float64(1),
	}

	res := Validate(data, statsLikeSchema(), Options{})
	if !res.Valid {
		t.Fatalf("Validate() invalid, errors = %v", res.Errors)
	}
	if res.HasRecoveries {
		t.Error("HasRecoveries = true for clean record")
	}
}

func TestValidateRecoversMissingDefaultableField(t *testing.T) {
	data := map[string]any{
		"session_id": "session-1",
		"started_at": "2026-08-25T10:00:00Z",
		// gigachad_merges absent
	}

	res := Validate(data, statsLikeSchema(), Options{Recover: true})
	if !res.Valid {
		t.Fatalf("Validate() invalid, errors = %v", res.Errors)
	}
	if !res.HasRecoveries {
		t.Error("HasRecoveries = false, want true")
	}
	if got := res.Data["gigachad_merges"]; got != float64(0) {
		t.Errorf("gigachad_merges = %v, want 0", got)
	}
	if got := res.Data["issues_completed"]; got != float64(0) {
		t.Errorf("issues_completed = %v, want 0", got)
	}
}

func TestValidateRecoversInvalidDefaultableField(t *testing.T) {
	data := map[string]any{
		"session_id":      "session-1",
		"started_at":      "2026-08-25T10:00:00Z",
		"gigachad_merges": "not-a-number",
	}

	res := Validate(data, statsLikeSchema(), Options{Recover: true})
	if !res.Valid {
		t.Fatalf("Validate() invalid, errors = %v", res.Errors)
	}
	if !res.HasRecoveries {
		t.Error("HasRecoveries = false, want true")
	}
	if got := res.Data["gigachad_merges"]; got != float64(0) {
		t.Errorf("gigachad_merges = %v, want default 0", got)
	}
}

func TestValidateWithoutRecoveryRejectsInvalidField(t *testing.T) {
	data := map[string]any{
		"session_id":       "session-1",
		"started_at":       "2026-08-25T10:00:00Z",
		"issues_completed": float64(1),
		"gigachad_merges":  "not-a-number",
	}

	res := Validate(data, statsLikeSchema(), Options{})
	if res.Valid {
		t.Fatal("Validate() valid, want invalid without recovery")
	}
	if len(res.Errors) == 0 {
		t.Fatal("no errors reported")
	}
	if res.Errors[0].Path != "gigachad_merges" {
		t.Errorf("error path = %q, want gigachad_merges", res.Errors[0].Path)
	}
}

func TestValidateMissingRequiredFieldNeverDefaulted(t *testing.T) {
	// Required fields without a declared default fail even under recovery.
	data := map[string]any{
		"started_at": "2026-08-25T10:00:00Z",
	}

	res := Validate(data, statsLikeSchema(), Options{Recover: true})
	if res.Valid {
		t.Fatal("Validate() valid, want invalid for missing required field")
	}
}

func TestValidateConstraints(t *testing.T) {
	s := Schema{
		Name: "constraints",
		Fields: map[string]Field{
			"count":  {Type: TypeNumber, Integer: true, Min: floatPtr(1), Max: floatPtr(10)},
			"name":   {Type: TypeString, MinLength: intPtr(2), MaxLength: intPtr(5)},
			"status": {Type: TypeString, Enum: []string{"open", "closed"}},
			"repo":   {Type: TypeString, Pattern: regexp.MustCompile(`^[a-z]+/[a-z]+$`)},
			"flag":   {Type: TypeBoolean},
		},
	}

	tests := []struct {
		name  string
		data  map[string]any
		valid bool
	}{
		{name: "all valid", data: map[string]any{"count": float64(5), "name": "abc", "status": "open", "repo": "a/b", "flag": true}, valid: true},
		{name: "empty record", data: map[string]any{}, valid: true},
		{name: "non-integer", data: map[string]any{"count": float64(1.5)}, valid: false},
		{name: "below min", data: map[string]any{"count": float64(0)}, valid: false},
		{name: "above max", data: map[string]any{"count": float64(11)}, valid: false},
		{name: "too short", data: map[string]any{"name": "a"}, valid: false},
		{name: "too long", data: map[string]any{"name": "abcdef"}, valid: false},
		{name: "bad enum", data: map[string]any{"status": "pending"}, valid: false},
		{name: "bad pattern", data: map[string]any{"repo": "NoCaps/x"}, valid: false},
		{name: "wrong bool type", data: map[string]any{"flag": "yes"}, valid: false},
		{name: "unknown field passes through", data: map[string]any{"extra": "anything"}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.data, s, Options{})
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v (errors: %v)", res.Valid, tt.valid, res.Errors)
			}
		})
	}
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	data := map[string]any{
		"session_id": "session-1",
		"started_at": "2026-08-25T10:00:00Z",
	}

	res := Validate(data, statsLikeSchema(), Options{Recover: true})
	if _, present := data["gigachad_merges"]; present {
		t.Error("input map mutated by recovery")
	}
	if res.Data["session_id"] != "session-1" {
		t.Error("output missing passthrough field")
	}
}

func TestValidateNestedRecoveryDoesNotMutateInput(t *testing.T) {
	s := Schema{
		Name: "nested",
		Fields: map[string]Field{
			"meta": {
				Type: TypeObject,
				Fields: map[string]Field{
					"version": {
						Type: TypeNumber, Required: true, Integer: true,
						Default: float64(1), HasDefault: true,
					},
				},
			},
		},
	}

	inner := map[string]any{"version": "one"}
	data := map[string]any{"meta": inner}

	res := Validate(data, s, Options{Recover: true})
	if !res.Valid {
		t.Fatalf("Validate() invalid, errors: %v", res.Errors)
	}
	if !res.HasRecoveries {
		t.Error("HasRecoveries = false, want true")
	}
	if inner["version"] != "one" {
		t.Errorf("caller's nested map mutated: version = %v", inner["version"])
	}
	got, ok := res.Data["meta"].(map[string]any)
	if !ok {
		t.Fatalf("output meta = %T, want object", res.Data["meta"])
	}
	if got["version"] != float64(1) {
		t.Errorf("recovered nested version = %v, want 1", got["version"])
	}
}

func TestValidateNestedObject(t *testing.T) {
	s := Schema{
		Name: "nested",
		Fields: map[string]Field{
			"meta": {
				Type: TypeObject,
				Fields: map[string]Field{
					"version": {Type: TypeNumber, Required: true, Integer: true},
				},
			},
		},
	}

	res := Validate(map[string]any{
		"meta": map[string]any{"version": "one"},
	}, s, Options{})
	if res.Valid {
		t.Fatal("Validate() valid, want invalid for nested type mismatch")
	}
	if res.Errors[0].Path != "meta.version" {
		t.Errorf("error path = %q, want meta.version", res.Errors[0].Path)
	}
}

func TestValidateArrayDropsInvalidElements(t *testing.T) {
	itemSchema := Schema{
		Name: "task",
		Fields: map[string]Field{
			"issue_number": {Type: TypeNumber, Required: true, Integer: true, Min: floatPtr(1)},
			"outcome": {
				Type: TypeString, Required: true,
				Enum:    []string{"completed", "failed", "skipped"},
				Default: "failed", HasDefault: true,
			},
		},
	}

	items := []any{
		map[string]any{"issue_number": float64(1), "outcome": "completed"},
		// missing required issue_number, no default: dropped
		map[string]any{"outcome": "completed"},
		// bad enum value: recovered to the declared default
		map[string]any{"issue_number": float64(3), "outcome": "bogus"},
		// not an object: dropped
		"not an object",
		map[string]any{"issue_number": float64(5), "outcome": "skipped"},
	}

	res := ValidateArray(items, itemSchema, Options{Recover: true})
	if res.Valid {
		t.Error("Valid = true, want false when elements were dropped")
	}
	if len(res.Data) != 3 {
		t.Fatalf("kept %d elements, want 3 (got: %v)", len(res.Data), res.Data)
	}
	if res.Data[0]["issue_number"] != float64(1) {
		t.Errorf("first kept element = %v", res.Data[0])
	}
	if res.Data[1]["outcome"] != "failed" {
		t.Errorf("recovered element outcome = %v, want default failed", res.Data[1]["outcome"])
	}
	if res.Data[2]["issue_number"] != float64(5) {
		t.Errorf("last kept element = %v", res.Data[2])
	}
}

func TestValidateArrayWithoutRecoveryFailsWhole(t *testing.T) {
	itemSchema := Schema{
		Name: "task",
		Fields: map[string]Field{
			"issue_number": {Type: TypeNumber, Required: true},
		},
	}

	items := []any{
		map[string]any{"issue_number": float64(1)},
		map[string]any{},
	}

	res := ValidateArray(items, itemSchema, Options{})
	if res.Valid {
		t.Error("Valid = true, want false")
	}
	if len(res.Errors) == 0 {
		t.Error("no errors reported")
	}
}

func TestValidateArrayAllValid(t *testing.T) {
	itemSchema := Schema{
		Name: "task",
		Fields: map[string]Field{
			"issue_number": {Type: TypeNumber, Required: true},
		},
	}

	items := []any{
		map[string]any{"issue_number": float64(1)},
		map[string]any{"issue_number": float64(2)},
	}

	res := ValidateArray(items, itemSchema, Options{Recover: true})
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}
	if len(res.Data) != 2 {
		t.Errorf("kept %d elements, want 2", len(res.Data))
	}
}
