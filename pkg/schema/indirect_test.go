package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseIndirect(t *testing.T) {
	tests := []struct {
		raw      string
		indirect bool
		env      string
	}{
		{"plain", false, ""},
		{"$env:HOST", true, "HOST"},
		{"$env:", false, ""},
		{"prefix$env:X", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		got := ParseIndirect(tt.raw)
		if got.IsIndirect() != tt.indirect || got.EnvVar() != tt.env {
			t.Errorf("ParseIndirect(%q) = %+v", tt.raw, got)
		}
		if got.String() != tt.raw {
			t.Errorf("String() = %q, want %q", got.String(), tt.raw)
		}
	}
}

func TestIndirectStringYAML(t *testing.T) {
	var v struct {
		Host IndirectString `yaml:"host"`
	}
	if err := yaml.Unmarshal([]byte("host: $env:BUILD_HOST\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Host.EnvVar() != "BUILD_HOST" {
		t.Fatalf("env = %q", v.Host.EnvVar())
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "$env:BUILD_HOST") {
		t.Errorf("marshal = %q", out)
	}
}

func TestIndirectStringJSONHidesNothingResolved(t *testing.T) {
	data, err := json.Marshal(EnvRef("PW"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"$env:PW"` {
		t.Errorf("json = %s", data)
	}
	var back IndirectString
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != EnvRef("PW") {
		t.Errorf("round trip = %+v", back)
	}
}
