package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFS_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	exec := NewFS()
	path := filepath.Join(t.TempDir(), "nested", "hello.txt")

	if err := exec.Write(ctx, path, "hi"); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := exec.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if got != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}

	if err := exec.Write(ctx, path, "bye"); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	if got, _ := exec.Read(ctx, path); got != "bye" {
		t.Fatalf("expected overwrite, got %q", got)
	}

	if err := exec.Delete(ctx, path); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
}

func TestFS_MissingFile(t *testing.T) {
	ctx := context.Background()
	exec := NewFS()
	path := filepath.Join(t.TempDir(), "missing.txt")

	if _, err := exec.Read(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on read, got %v", err)
	}
	if err := exec.Delete(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestFS_RefusesDirectories(t *testing.T) {
	ctx := context.Background()
	exec := NewFS()
	dir := t.TempDir()

	if _, err := exec.Read(ctx, dir); err == nil {
		t.Fatal("expected read of a directory to fail")
	}
	if err := exec.Delete(ctx, dir); err == nil {
		t.Fatal("expected delete of a directory to fail")
	}
	if err := exec.Write(ctx, dir, "x"); err == nil {
		t.Fatal("expected write over a directory to fail")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory to survive, got %v", err)
	}
}

func TestFS_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := NewFS().Write(ctx, path, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected no write after cancellation")
	}
}
