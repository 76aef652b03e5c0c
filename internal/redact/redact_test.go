package redact

import "testing"

func TestRedact(t *testing.T) {
	r := New("topsecretvalue", "hunter2pass")
	in := "webhook failed: signature key topsecretvalue rejected; smtp auth hunter2pass failed"
	want := "webhook failed: signature key [REDACTED] rejected; smtp auth [REDACTED] failed"
	if got := r.Redact(in); got != want {
		t.Errorf("Redact() = %q, want %q", got, want)
	}
}

func TestRedactIgnoresShortSecrets(t *testing.T) {
	r := New("ab")
	in := "ab cd ab"
	if got := r.Redact(in); got != in {
		t.Errorf("Redact() should leave input unchanged for sub-minimum secrets, got %q", got)
	}
}

func TestRedactNoSecrets(t *testing.T) {
	r := New()
	in := "nothing to scrub here"
	if got := r.Redact(in); got != in {
		t.Errorf("Redact() with no secrets = %q, want unchanged %q", got, in)
	}
}
