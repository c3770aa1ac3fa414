package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListInputFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.xlsx", "A.XLSX", "c.xls", "notes.txt", "~$b.xlsx", ".hidden.xlsx")
	if err := os.Mkdir(filepath.Join(dir, "sub.xlsx"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := ListInputFiles(dir, ".xlsx")
	if err != nil {
		t.Fatalf("ListInputFiles: %v", err)
	}
	want := []string{filepath.Join(dir, "A.XLSX"), filepath.Join(dir, "b.xlsx")}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestListInputFilesMissingDir(t *testing.T) {
	if _, err := ListInputFiles(filepath.Join(t.TempDir(), "missing"), ".xlsx"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
