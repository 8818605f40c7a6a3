package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContext_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{
			name: "empty context",
			ctx:  Context{},
			want: true,
		},
		{
			name: "with email only",
			ctx:  Context{Email: "a@example.com"},
			want: false,
		},
		{
			name: "with principal only",
			ctx:  Context{PrincipalID: "u1"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.IsEmpty(); got != tt.want {
				t.Errorf("Context.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_String(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{
			name: "empty",
			ctx:  Context{},
			want: "(not signed in)",
		},
		{
			name: "email only",
			ctx:  Context{Email: "a@example.com"},
			want: "a@example.com",
		},
		{
			name: "display name and long id",
			ctx:  Context{Email: "a@example.com", DisplayName: "Ada", PrincipalID: "abcdefghijkl"},
			want: "Ada (abcdefgh)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.String(); got != tt.want {
				t.Errorf("Context.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_RememberAndClear(t *testing.T) {
	ctx := &Context{}
	ctx.Remember("  a@example.com ", "u1", "Ada")

	if ctx.Email != "a@example.com" {
		t.Errorf("Email = %v, want a@example.com", ctx.Email)
	}
	if ctx.PrincipalID != "u1" {
		t.Errorf("PrincipalID = %v, want u1", ctx.PrincipalID)
	}
	if ctx.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	ctx.Clear()
	if !ctx.IsEmpty() {
		t.Error("context should be empty after Clear()")
	}
}

func TestContextStore_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewContextStore(filepath.Join(tmpDir, "nested", "context.yaml"))

	ctx := &Context{}
	ctx.Remember("a@example.com", "u1", "Ada")

	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Email != ctx.Email {
		t.Errorf("Email = %v, want %v", loaded.Email, ctx.Email)
	}
	if loaded.PrincipalID != ctx.PrincipalID {
		t.Errorf("PrincipalID = %v, want %v", loaded.PrincipalID, ctx.PrincipalID)
	}
	if loaded.DisplayName != ctx.DisplayName {
		t.Errorf("DisplayName = %v, want %v", loaded.DisplayName, ctx.DisplayName)
	}
}

func TestContextStore_LoadEmpty(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.IsEmpty() {
		t.Error("Load() should return empty context for non-existent file")
	}
}

func TestContextStore_Clear(t *testing.T) {
	contextPath := filepath.Join(t.TempDir(), "context.yaml")
	store := NewContextStore(contextPath)

	if err := store.Save(&Context{Email: "a@example.com"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		t.Fatal("context file should exist after save")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(contextPath); !os.IsNotExist(err) {
		t.Error("context file should be removed after clear")
	}

	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}
