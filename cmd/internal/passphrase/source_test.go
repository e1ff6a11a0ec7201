package passphrase

import (
	"errors"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("TREASURY_TEST_TOKEN", "  abc  ")
	src := NewSource("TREASURY_TEST_TOKEN", "token")
	src.prompt = func(string) (string, error) {
		t.Fatalf("prompted despite environment value")
		return "", nil
	}
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "abc" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("TREASURY_TEST_TOKEN", " ")
	if _, err := NewSource("TREASURY_TEST_TOKEN", "token").Get(); err == nil {
		t.Fatalf("expected error for blank environment value")
	}
}

func TestSourcePromptsOnce(t *testing.T) {
	calls := 0
	src := NewSource("", "token")
	src.prompt = func(label string) (string, error) {
		calls++
		if label != "token" {
			t.Fatalf("unexpected label %q", label)
		}
		return "secret", nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "secret" {
			t.Fatalf("get: %q %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("prompted %d times", calls)
	}
}

func TestSourcePromptFailure(t *testing.T) {
	src := NewSource("TREASURY_UNSET_VAR_FOR_TEST", "token")
	src.prompt = func(string) (string, error) { return "", errors.New("no terminal available") }
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected prompt failure")
	}
}
