package fs

import (
	"testing"

	"github.com/spf13/afero"
)

func TestDefaultFactory(t *testing.T) {
	factory := NewDefaultFactory()

	if factory == nil {
		t.Fatal("Expected factory to be created")
	}

	prodFS := factory.Production()
	if _, ok := prodFS.(*afero.OsFs); !ok {
		t.Error("Expected production filesystem to be *afero.OsFs")
	}

	memFS := factory.Memory()
	if _, ok := memFS.(*afero.MemMapFs); !ok {
		t.Error("Expected memory filesystem to be *afero.MemMapFs")
	}
}

func TestMemoryFilesystemIsolation(t *testing.T) {
	factory := NewDefaultFactory()
	memFS1 := factory.Memory()
	memFS2 := factory.Memory()

	if err := afero.WriteFile(memFS1, "/hall.wav", []byte("content1"), 0644); err != nil {
		t.Fatalf("Failed to write to memFS1: %v", err)
	}
	if err := afero.WriteFile(memFS2, "/rain.wav", []byte("content2"), 0644); err != nil {
		t.Fatalf("Failed to write to memFS2: %v", err)
	}

	if exists, _ := afero.Exists(memFS1, "/rain.wav"); exists {
		t.Error("Expected file from memFS2 not to exist in memFS1 (isolation broken)")
	}
	if exists, _ := afero.Exists(memFS2, "/hall.wav"); exists {
		t.Error("Expected file from memFS1 not to exist in memFS2 (isolation broken)")
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	factory := NewDefaultFactory()
	base := factory.Memory()
	if err := afero.WriteFile(base, "/ir.wav", []byte("riff"), 0644); err != nil {
		t.Fatalf("Failed to seed base filesystem: %v", err)
	}

	ro := factory.ReadOnly(base)

	data, err := afero.ReadFile(ro, "/ir.wav")
	if err != nil {
		t.Fatalf("Expected read through read-only view to succeed: %v", err)
	}
	if string(data) != "riff" {
		t.Errorf("Expected 'riff', got %q", data)
	}

	if err := afero.WriteFile(ro, "/other.wav", []byte("x"), 0644); err == nil {
		t.Error("Expected write through read-only view to fail")
	}
}
