// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func fileMeta(id, owner, name, directoryID, path string, totalChunks int) FileMetadata {
	now := time.Now().UTC()
	return FileMetadata{
		ID: id, OwnerID: owner, Name: name, Size: 1024, DirectoryID: directoryID,
		Path: path, TotalChunks: totalChunks, CreatedAt: now, UpdatedAt: now,
	}
}

// readFileSnapshot lê o snapshot do disco, do jeito que um restart leria.
func readFileSnapshot(t *testing.T, path string) map[string]FileMetadata {
	t.Helper()
	var records []FileMetadata
	if err := loadSnapshot(path, &records); err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	out := make(map[string]FileMetadata, len(records))
	for _, f := range records {
		out[f.ID] = f
	}
	return out
}

func TestUpdateProgressPersistsOnlyOnCompletion(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "files.json")
	c, err := NewFileCatalog(snapPath, testLogger())
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	if err := c.Put(fileMeta("f1", "u1", "video.mp4", "", "/data/u1/f1_video.mp4", 5)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Progresso intermediário fica só em memória.
	if err := c.UpdateProgress("f1", 3, false); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, ok := c.Get("f1")
	if !ok || got.ChunksReceived != 3 {
		t.Fatalf("in-memory ChunksReceived = %d, want 3", got.ChunksReceived)
	}
	onDisk := readFileSnapshot(t, snapPath)
	if onDisk["f1"].ChunksReceived != 0 || onDisk["f1"].Complete {
		t.Errorf("snapshot after partial progress = %+v, want chunks 0 / incomplete", onDisk["f1"])
	}

	// A transição para complete grava o snapshot.
	if err := c.UpdateProgress("f1", 5, true); err != nil {
		t.Fatalf("UpdateProgress complete: %v", err)
	}
	onDisk = readFileSnapshot(t, snapPath)
	if onDisk["f1"].ChunksReceived != 5 || !onDisk["f1"].Complete {
		t.Errorf("snapshot after completion = %+v, want chunks 5 / complete", onDisk["f1"])
	}
}

func TestUpdateProgressUnknownID(t *testing.T) {
	c, err := NewFileCatalog(filepath.Join(t.TempDir(), "files.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	if err := c.UpdateProgress("missing", 1, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTotalBytesCountsOnlyCompleteFiles(t *testing.T) {
	c, err := NewFileCatalog(filepath.Join(t.TempDir(), "files.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}

	done := fileMeta("f1", "u1", "a.bin", "", "/data/u1/f1_a.bin", 1)
	done.Size = 100
	done.Complete = true
	pending := fileMeta("f2", "u1", "b.bin", "", "/data/u1/f2_b.bin", 4)
	pending.Size = 900
	if err := c.PutBatch([]FileMetadata{done, pending}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	if got := c.TotalBytes(); got != 100 {
		t.Errorf("TotalBytes = %d, want 100", got)
	}
}

func TestListByDirectorySet(t *testing.T) {
	c, err := NewFileCatalog(filepath.Join(t.TempDir(), "files.json"), testLogger())
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	if err := c.PutBatch([]FileMetadata{
		fileMeta("f1", "u1", "a.bin", "d1", "/data/u1/d1/f1_a.bin", 1),
		fileMeta("f2", "u1", "b.bin", "d2", "/data/u1/d2/f2_b.bin", 1),
		fileMeta("f3", "u1", "c.bin", "d3", "/data/u1/d3/f3_c.bin", 1),
		fileMeta("f4", "u2", "d.bin", "d1", "/data/u2/d1/f4_d.bin", 1),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	got := c.ListByDirectorySet("u1", map[string]bool{"d1": true, "d3": true})
	if len(got) != 2 {
		t.Fatalf("ListByDirectorySet returned %d files, want 2", len(got))
	}
	if got[0].ID != "f1" || got[1].ID != "f3" {
		t.Errorf("files = %s, %s; want f1, f3", got[0].ID, got[1].ID)
	}
}
