package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestFileProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	provider, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := provider.Resolve(ctx, "organization_1_token"); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("expected ErrValueNotFound, got %v", err)
	}

	if err := provider.Store(ctx, "organization_1_token", "s3cr3t\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Trailing whitespace is trimmed so values written with a newline
	// (echo, kubectl create secret) resolve cleanly.
	value, err := provider.Resolve(ctx, "organization_1_token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "s3cr3t" {
		t.Errorf("unexpected value: %q", value)
	}

	if err := provider.Delete(ctx, "organization_1_token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := provider.Resolve(ctx, "organization_1_token"); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("expected ErrValueNotFound after delete, got %v", err)
	}

	// Deleting a missing value is not an error.
	if err := provider.Delete(ctx, "organization_1_token"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFileProvider_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	provider, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{"", "../etc/passwd", "a/b", `a\b`} {
		if _, err := provider.Resolve(ctx, path); err == nil {
			t.Errorf("expected error for path %q", path)
		}
		if err := provider.Store(ctx, path, "x"); err == nil {
			t.Errorf("expected store error for path %q", path)
		}
	}
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if _, err := provider.Resolve(ctx, "product_2_apiKey"); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("expected ErrValueNotFound, got %v", err)
	}
	if err := provider.Store(ctx, "product_2_apiKey", "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := provider.Resolve(ctx, "product_2_apiKey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "abc" {
		t.Errorf("unexpected value: %q", value)
	}
}
