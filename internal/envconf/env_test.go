package envconf

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("CONVEYOR_TEST_STR", "hello")

	if got := String("CONVEYOR_TEST_STR", "def"); got != "hello" {
		t.Errorf("expected hello, got %s", got)
	}
	if got := String("CONVEYOR_TEST_STR_MISSING", "def"); got != "def" {
		t.Errorf("expected default, got %s", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("CONVEYOR_TEST_DUR", "90s")

	d, err := Duration("CONVEYOR_TEST_DUR", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 90*time.Second {
		t.Errorf("expected 90s, got %v", d)
	}

	d, err = Duration("CONVEYOR_TEST_DUR_MISSING", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Minute {
		t.Errorf("expected default 1m, got %v", d)
	}

	t.Setenv("CONVEYOR_TEST_DUR_BAD", "soon")
	if _, err := Duration("CONVEYOR_TEST_DUR_BAD", time.Minute); err == nil {
		t.Error("expected parse error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CONVEYOR_TEST_BOOL", "true")

	b, err := Bool("CONVEYOR_TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b {
		t.Error("expected true")
	}

	t.Setenv("CONVEYOR_TEST_BOOL_BAD", "yep")
	if _, err := Bool("CONVEYOR_TEST_BOOL_BAD", false); err == nil {
		t.Error("expected parse error")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("CONVEYOR_TEST_INT", "42")

	i, err := Int("CONVEYOR_TEST_INT", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i != 42 {
		t.Errorf("expected 42, got %d", i)
	}

	i, err = Int("CONVEYOR_TEST_INT_MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i != 7 {
		t.Errorf("expected default 7, got %d", i)
	}
}
