package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestFileDiskManagerReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer dm.Close()

	written := make([]byte, PageSize)
	for i := range written {
		written[i] = byte(i % 251)
	}
	if err := dm.WritePage(3, written); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	read := make([]byte, PageSize)
	if err := dm.ReadPage(3, read); err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if !bytes.Equal(written, read) {
		t.Error("Read content differs from written content")
	}
}

func TestFileDiskManagerReadBeyondEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer dm.Close()

	// Pages that were never written read back as zeros
	read := make([]byte, PageSize)
	read[17] = 0xFF
	if err := dm.ReadPage(9, read); err != nil {
		t.Fatalf("Read beyond EOF should succeed: %v", err)
	}
	for i, b := range read {
		if b != 0 {
			t.Fatalf("Byte %d not zeroed: %d", i, b)
		}
	}

	// A page whose tail lies beyond EOF zero-fills the remainder
	if err := dm.WritePage(0, bytes.Repeat([]byte{0xAA}, PageSize)); err != nil {
		t.Fatalf("Failed to write page 0: %v", err)
	}
	if err := os.Truncate(path, PageSize/2); err != nil {
		t.Fatalf("Failed to truncate data file: %v", err)
	}
	if err := dm.ReadPage(0, read); err != nil {
		t.Fatalf("Failed to read page 0: %v", err)
	}
	for i, b := range read {
		want := byte(0)
		if i < PageSize/2 {
			want = 0xAA
		}
		if b != want {
			t.Fatalf("Byte %d: expected %d, got %d", i, want, b)
		}
	}
}

func TestFileDiskManagerBufferSizeChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer dm.Close()

	if err := dm.WritePage(0, make([]byte, 100)); err == nil {
		t.Error("Expected error for short write buffer")
	}
	if err := dm.ReadPage(0, make([]byte, PageSize+1)); err == nil {
		t.Error("Expected error for oversized read buffer")
	}
}

func TestFileDiskManagerAllocateGrowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer dm.Close()

	if err := dm.AllocatePage(7); err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat data file: %v", err)
	}
	if info.Size() < 8*PageSize {
		t.Errorf("Expected file of at least %d bytes, got %d", 8*PageSize, info.Size())
	}

	// Allocating an already-covered page leaves the file alone
	if err := dm.AllocatePage(2); err != nil {
		t.Fatalf("Failed to allocate covered page: %v", err)
	}
	info2, _ := os.Stat(path)
	if info2.Size() != info.Size() {
		t.Errorf("Covered allocation changed file size: %d -> %d", info.Size(), info2.Size())
	}

	if err := dm.DeallocatePage(7); err != nil {
		t.Errorf("Deallocate should be a no-op: %v", err)
	}
}

func TestFileDiskManagerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	dm, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}

	content := make([]byte, PageSize)
	copy(content, []byte("durable bytes"))
	if err := dm.WritePage(1, content); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	dm2, err := NewFileDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to reopen disk manager: %v", err)
	}
	defer dm2.Close()

	read := make([]byte, PageSize)
	if err := dm2.ReadPage(1, read); err != nil {
		t.Fatalf("Failed to read page after reopen: %v", err)
	}
	if !bytes.Equal(content, read) {
		t.Error("Content lost across reopen")
	}
}
