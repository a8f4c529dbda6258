package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "stages[0].actions[2].remote.host")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity != "warning" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full 3-phase validation pipeline on a workflow file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Workflow, []*ValidationError) {
	wf, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return wf, Validate(wf)
}

// Validate runs the semantic and domain phases on an already decoded workflow.
func Validate(wf *Workflow) []*ValidationError {
	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(wf)...)
	allErrors = append(allErrors, ValidateDomain(wf)...)
	if len(allErrors) == 0 {
		return nil
	}
	return allErrors
}

// validateSemantic validates the workflow against the generated JSON Schema.
func validateSemantic(wf *Workflow) []*ValidationError {
	data, err := json.Marshal(wf)
	if err != nil {
		return semanticFailure("marshal for schema validation: %v", err)
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticFailure("generate schema: %v", err)
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticFailure("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("workflow-v0.json", schemaDoc); err != nil {
		return semanticFailure("add schema resource: %v", err)
	}
	sch, err := c.Compile("workflow-v0.json")
	if err != nil {
		return semanticFailure("compile schema: %v", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticFailure("unmarshal document: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func semanticFailure(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(wf *Workflow) []*ValidationError {
	var errs []*ValidationError

	if len(wf.Stages) == 0 {
		errs = append(errs, domainError("stages", "workflow must contain at least one stage"))
	}

	seen := make(map[string]int)
	for i, stage := range wf.Stages {
		path := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(stage.Name) == "" {
			errs = append(errs, domainError(path+".name", "stage name must not be empty"))
		} else if prev, dup := seen[stage.Name]; dup {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".name",
				Message:  fmt.Sprintf("stage name %q already used by stages[%d]", stage.Name, prev),
				Severity: "warning",
			})
		} else {
			seen[stage.Name] = i
		}
		if len(stage.Actions) == 0 {
			errs = append(errs, domainError(path+".actions", "stage must contain at least one action"))
		}
		for j, action := range stage.Actions {
			errs = append(errs, validateAction(fmt.Sprintf("%s.actions[%d]", path, j), action)...)
		}
	}
	return errs
}

func validateAction(path string, a Action) []*ValidationError {
	var errs []*ValidationError

	switch a.Kind() {
	case KindInvalid:
		return append(errs, domainError(path, "action must set exactly one of text or command"))

	case KindMessage:
		var extra []string
		if a.HideStdout {
			extra = append(extra, "hide_stdout")
		}
		if a.HideStderr {
			extra = append(extra, "hide_stderr")
		}
		if a.Remote != nil {
			extra = append(extra, "remote")
		}
		if a.Sudo != nil {
			extra = append(extra, "sudo")
		}
		if a.Loop != nil {
			extra = append(extra, "loop")
		}
		if len(extra) > 0 {
			errs = append(errs, domainError(path, fmt.Sprintf("message action does not accept %s", strings.Join(extra, ", "))))
		}

	case KindCommand:
		if a.Speed != nil {
			errs = append(errs, domainError(path+".speed", "speed only applies to message actions"))
		}
		for k, c := range a.Command {
			if strings.TrimSpace(c) == "" {
				errs = append(errs, domainError(fmt.Sprintf("%s.command[%d]", path, k), "command must not be empty"))
			}
		}
		if a.Loop != nil && a.Loop.Times < 1 {
			errs = append(errs, domainError(path+".loop.times", "loop.times must be at least 1"))
		}
		if a.Remote != nil {
			errs = append(errs, validateIndirect(path+".remote.host", a.Remote.Host, true)...)
			errs = append(errs, validateIndirect(path+".remote.user", a.Remote.User, true)...)
			errs = append(errs, validateIndirect(path+".remote.password", a.Remote.Password, false)...)
			errs = append(errs, literalSecretWarning(path+".remote.password", a.Remote.Password)...)
		}
		if a.Sudo != nil {
			errs = append(errs, validateIndirect(path+".sudo.user", a.Sudo.User, false)...)
			errs = append(errs, validateIndirect(path+".sudo.password", a.Sudo.Password, false)...)
			errs = append(errs, literalSecretWarning(path+".sudo.password", a.Sudo.Password)...)
		}
	}
	return errs
}

func validateIndirect(path string, v IndirectString, required bool) []*ValidationError {
	if v.IsZero() {
		if required {
			return []*ValidationError{domainError(path, "value is required")}
		}
		return nil
	}
	if v.IsIndirect() {
		name := v.EnvVar()
		if strings.ContainsAny(name, " \t=") {
			return []*ValidationError{domainError(path, fmt.Sprintf("invalid environment variable name %q", name))}
		}
	} else if raw, _ := v.LiteralValue(); raw == EnvPrefix {
		return []*ValidationError{domainError(path, "environment reference is missing a variable name")}
	}
	return nil
}

func literalSecretWarning(path string, v IndirectString) []*ValidationError {
	if v.IsZero() || v.IsIndirect() {
		return nil
	}
	return []*ValidationError{{
		Phase:    "domain",
		Path:     path,
		Message:  "password is stored in the document; prefer " + EnvPrefix + "NAME",
		Severity: "warning",
	}}
}

func domainError(path, msg string) *ValidationError {
	return &ValidationError{
		Phase:    "domain",
		Path:     path,
		Message:  msg,
		Severity: "error",
	}
}
