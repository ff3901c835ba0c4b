package onnx

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLibraryName(t *testing.T) {
	tests := map[string]string{
		"linux":   "libonnxruntime.so",
		"darwin":  "libonnxruntime.dylib",
		"windows": "onnxruntime.dll",
	}
	for goos, want := range tests {
		got, err := libraryName(goos)
		if err != nil {
			t.Fatalf("libraryName(%q) failed: %v", goos, err)
		}
		if got != want {
			t.Errorf("libraryName(%q) = %s, want %s", goos, got, want)
		}
	}
	if _, err := libraryName("plan9"); err == nil {
		t.Error("libraryName(plan9) should fail")
	}
}

func TestCandidateLibraryPaths_Order(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/env/libonnxruntime.so")

	paths := candidateLibraryPaths("/explicit/lib.so", true)
	if len(paths) < 3 {
		t.Fatalf("expected several candidates, got %v", paths)
	}
	if paths[0] != "/explicit/lib.so" {
		t.Errorf("explicit path should come first, got %s", paths[0])
	}
	if paths[1] != "/env/libonnxruntime.so" {
		t.Errorf("env path should come second, got %s", paths[1])
	}
	if runtime.GOOS == "linux" && paths[2] != "/opt/onnxruntime/gpu/lib/libonnxruntime.so" {
		t.Errorf("gpu system path should follow overrides, got %s", paths[2])
	}
}

func TestResolveLibraryPath_Explicit(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "custom.so")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake library: %v", err)
	}

	got, err := ResolveLibraryPath(lib, false)
	if err != nil {
		t.Fatalf("ResolveLibraryPath() failed: %v", err)
	}
	if got != lib {
		t.Errorf("ResolveLibraryPath() = %s, want %s", got, lib)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "project")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
	t.Chdir(sub)

	got, err := findProjectRoot()
	if err != nil {
		t.Fatalf("findProjectRoot() failed: %v", err)
	}
	if got != root {
		t.Errorf("findProjectRoot() = %s, want %s", got, root)
	}
}
