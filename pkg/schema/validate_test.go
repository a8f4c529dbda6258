package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func hasMessage(errs []*ValidationError, severity, substr string) bool {
	for _, e := range errs {
		if e.Severity == severity && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateInvalidFixtures(t *testing.T) {
	tests := []struct {
		file  string
		phase string
	}{
		{"unknown-fields.yaml", "structural"},
		{"text-and-command.yaml", "domain"},
		{"missing-remote-user.yaml", "domain"},
		{"bad-color.yaml", "semantic"},
		{"zero-loop.yaml", "domain"},
		{"no-stages.yaml", "domain"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, errs := ValidateFile("../../testdata/invalid/" + tt.file)
			if !HasErrors(errs) {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Phase == tt.phase {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s error in %v", tt.phase, errs)
			}
		})
	}
}

func TestValidateDomainActionShape(t *testing.T) {
	wf := &Workflow{Stages: []Stage{{
		Name: "s",
		Actions: []Action{
			{},
			{Text: "hi", Remote: &RemoteTarget{Host: Literal("h"), User: Literal("u")}},
			{Command: Commands{"ls", "  "}},
			{Command: Commands{"ls"}, Speed: new(uint)},
		},
	}}}
	errs := ValidateDomain(wf)
	for _, want := range []string{
		"exactly one of text or command",
		"does not accept remote",
		"command must not be empty",
		"speed only applies",
	} {
		if !hasMessage(errs, "error", want) {
			t.Errorf("missing error %q in %v", want, errs)
		}
	}
}

func TestValidateDomainIndirection(t *testing.T) {
	wf := &Workflow{Stages: []Stage{{
		Name: "s",
		Actions: []Action{{
			Command: Commands{"id"},
			Remote: &RemoteTarget{
				Host:     ParseIndirect("$env:"),
				User:     EnvRef("BAD NAME"),
				Password: Literal("hunter2"),
			},
			Sudo: &SudoSpec{Password: Literal("hunter2")},
		}},
	}}}
	errs := ValidateDomain(wf)
	if !hasMessage(errs, "error", "missing a variable name") {
		t.Errorf("bare prefix not reported: %v", errs)
	}
	if !hasMessage(errs, "error", "invalid environment variable name") {
		t.Errorf("bad env name not reported: %v", errs)
	}
	warnings := 0
	for _, e := range errs {
		if e.Severity == "warning" && strings.Contains(e.Message, "stored in the document") {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("literal password warnings = %d, want 2", warnings)
	}
}

func TestValidateDuplicateStageIsWarning(t *testing.T) {
	wf := &Workflow{Stages: []Stage{
		{Name: "same", Actions: []Action{{Text: "a"}}},
		{Name: "same", Actions: []Action{{Text: "b"}}},
	}}
	errs := Validate(wf)
	if HasErrors(errs) {
		t.Fatalf("duplicate names should not be errors: %v", errs)
	}
	if !hasMessage(errs, "warning", "already used") {
		t.Errorf("expected duplicate warning, got %v", errs)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$id"] != SchemaID {
		t.Errorf("$id = %v", doc["$id"])
	}
	if !strings.Contains(string(data), "$env:") {
		t.Error("schema should document environment indirection")
	}
}
