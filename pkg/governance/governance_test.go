package governance

import (
	"strings"
	"testing"
)

func TestRedactOutputMasksSecrets(t *testing.T) {
	rules := CompileSecretRules([]string{"hunter2", "", "p.ss"})
	got := RedactOutput("login hunter2 then p.ss but not pass", rules)
	if strings.Contains(got, "hunter2") || strings.Contains(got, "p.ss") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, "pass") {
		t.Errorf("regex metacharacters must match literally: %q", got)
	}
}

func TestCompileSecretRulesLongestFirst(t *testing.T) {
	rules := CompileSecretRules([]string{"abc", "abcdef", "abc"})
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	got := RedactOutput("xabcdefx", rules)
	if got != "x"+Mask+"x" {
		t.Errorf("got %q", got)
	}
}

func TestRedactBytesNoRules(t *testing.T) {
	in := []byte("plain")
	if out := RedactBytes(in, nil); string(out) != "plain" {
		t.Errorf("got %q", out)
	}
	out := RedactBytes([]byte("token=$1x"), CompileSecretRules([]string{"$1x"}))
	if string(out) != "token="+Mask {
		t.Errorf("got %q", out)
	}
}

func TestShortSecretsAreNotMasked(t *testing.T) {
	rules := CompileSecretRules([]string{"a", "ab", "hunter2"})
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	got := RedactOutput("a banana and hunter2", rules)
	if got != "a banana and "+Mask {
		t.Errorf("got %q", got)
	}
	if Maskable("ab") || !Maskable("abc") {
		t.Errorf("Maskable threshold should be %d", MinSecretLength)
	}
}
