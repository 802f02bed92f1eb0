package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.Add("kernel.cu", []byte("__global__ void k() {}"), 0)
	if id1 != 0 {
		t.Fatalf("first FileID = %d, want 0", id1)
	}
	id2 := fs.Add("kernel.cu", []byte("__global__ void k2() {}"), 0)
	if id2 != 1 {
		t.Fatalf("second FileID = %d, want 1", id2)
	}

	latest, ok := fs.GetLatest("kernel.cu")
	if !ok || latest != id2 {
		t.Fatalf("GetLatest = %d,%v, want %d,true", latest, ok, id2)
	}
	if got := string(fs.Get(id1).Content); got != "__global__ void k() {}" {
		t.Errorf("old content lost: %q", got)
	}
	if fs.Len() != 2 {
		t.Errorf("Len = %d, want 2", fs.Len())
	}
}

func TestFileSetGetOutOfRange(t *testing.T) {
	fs := NewFileSet()
	if fs.Get(0) != nil {
		t.Fatal("Get on empty set must return nil")
	}
	fs.AddVirtual("a.cu", []byte("x"))
	if fs.Get(1) != nil {
		t.Fatal("Get past the end must return nil")
	}
	var nilSet *FileSet
	if nilSet.Get(0) != nil {
		t.Fatal("Get on nil set must return nil")
	}
}

func TestAddVirtualLineIdx(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("a.cu", []byte("a\nb\n"))
	file := fs.Get(id)

	want := []uint32{1, 3}
	if len(file.LineIdx) != len(want) {
		t.Fatalf("LineIdx = %v, want %v", file.LineIdx, want)
	}
	for i, v := range want {
		if file.LineIdx[i] != v {
			t.Errorf("LineIdx[%d] = %d, want %d", i, file.LineIdx[i], v)
		}
	}
	if file.Flags&FileVirtual == 0 {
		t.Error("FileVirtual flag not set")
	}
}

func TestResolveAndPosition(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("k.cu", []byte("int a;\nint b;\n"))

	start, end := fs.Resolve(Span{File: id, Start: 7, End: 12})
	if start != (LineCol{Line: 2, Col: 1}) {
		t.Errorf("start = %+v", start)
	}
	if end != (LineCol{Line: 2, Col: 6}) {
		t.Errorf("end = %+v", end)
	}
	if got := fs.Position(Span{File: id, Start: 4, End: 5}); got != "k.cu:1:5" {
		t.Errorf("Position = %q", got)
	}
	if got := fs.Position(Span{File: 9, Start: 1, End: 2}); got != "9:1-2" {
		t.Errorf("Position of unknown file = %q", got)
	}
}

func TestGetLine(t *testing.T) {
	fs := NewFileSet()
	f := fs.Get(fs.AddVirtual("k.cu", []byte("first\nsecond\nthird")))

	cases := map[uint32]string{0: "", 1: "first", 2: "second", 3: "third", 4: ""}
	for line, want := range cases {
		if got := f.GetLine(line); got != want {
			t.Errorf("GetLine(%d) = %q, want %q", line, got, want)
		}
	}
}

func TestLoadNormalizesCRLFAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crlf.cu")
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a\r\nb\r\n")...)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != "a\nb\n" {
		t.Errorf("content = %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Errorf("flags = %b", f.Flags)
	}
}

func TestLoadMissingFile(t *testing.T) {
	fs := NewFileSet()
	if _, err := fs.Load(filepath.Join(t.TempDir(), "missing.cu")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
