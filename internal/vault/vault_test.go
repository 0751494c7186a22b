package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestVault(t *testing.T) *FS {
	t.Helper()
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v
}

func TestCreateAndReadText(t *testing.T) {
	v := newTestVault(t)

	if err := v.CreateText("general/note.md", "hello\n"); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := v.ReadText("general/note.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff("hello\n", got); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTextExisting(t *testing.T) {
	v := newTestVault(t)

	if err := v.CreateText("note.md", "one"); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := v.CreateText("note.md", "two")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	// The original content survives the failed create.
	got, err := v.ReadText("note.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff("one", got); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTextMissing(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ReadText("nope.md")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestModifyText(t *testing.T) {
	v := newTestVault(t)

	if err := v.CreateText("note.md", "old"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.ModifyText("note.md", "new"); err != nil {
		t.Fatalf("modify: %v", err)
	}
	got, _ := v.ReadText("note.md")
	if diff := cmp.Diff("new", got); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestExistsAndEnsureFolder(t *testing.T) {
	v := newTestVault(t)

	ok, err := v.Exists("sub/dir")
	if err != nil || ok {
		t.Fatalf("expected missing folder, got ok=%v err=%v", ok, err)
	}
	if err := v.EnsureFolder("sub/dir"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ok, err = v.Exists("sub/dir")
	if err != nil || !ok {
		t.Fatalf("expected folder to exist, got ok=%v err=%v", ok, err)
	}
	// Idempotent.
	if err := v.EnsureFolder("sub/dir"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
}

func TestCreateBinaryMakesParents(t *testing.T) {
	v := newTestVault(t)

	data := []byte{0x89, 0x50, 0x4e, 0x47}
	if err := v.CreateBinary("files/img/shot.png", data); err != nil {
		t.Fatalf("create binary: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(v.root, "files", "img", "shot.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if diff := cmp.Diff(data, raw); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestFreePath(t *testing.T) {
	v := newTestVault(t)

	got, err := v.FreePath("files/report.pdf")
	if err != nil {
		t.Fatalf("free path: %v", err)
	}
	if diff := cmp.Diff("files/report.pdf", got); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}

	if err := v.CreateBinary("files/report.pdf", []byte("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.CreateBinary("files/report 1.pdf", []byte("b")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err = v.FreePath("files/report.pdf")
	if err != nil {
		t.Fatalf("free path: %v", err)
	}
	if diff := cmp.Diff("files/report 2.pdf", got); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestFreePathNoExtension(t *testing.T) {
	v := newTestVault(t)

	if err := v.CreateBinary("files/blob", []byte("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := v.FreePath("files/blob")
	if err != nil {
		t.Fatalf("free path: %v", err)
	}
	if diff := cmp.Diff("files/blob 1", got); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}
