// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDirectoryCatalog(t *testing.T) *DirectoryCatalog {
	t.Helper()
	c, err := NewDirectoryCatalog(filepath.Join(t.TempDir(), "directories.json"), testLogger())
	if err != nil {
		t.Fatalf("NewDirectoryCatalog: %v", err)
	}
	return c
}

func dirMeta(id, owner, name, parentID, path string) DirectoryMetadata {
	now := time.Now().UTC()
	return DirectoryMetadata{
		ID: id, OwnerID: owner, Name: name, ParentID: parentID, Path: path,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestExistsWithNameIsCaseInsensitive(t *testing.T) {
	c := newTestDirectoryCatalog(t)
	if err := c.Put(dirMeta("d1", "u1", "Fotos", "", "/data/u1/Fotos")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !c.ExistsWithName("u1", "", "fotos", "") {
		t.Error("case-folded sibling should collide")
	}
	if !c.ExistsWithName("u1", "", "FOTOS", "") {
		t.Error("upper-cased sibling should collide")
	}
	// O próprio registro não conta quando excluído (rename para o mesmo nome).
	if c.ExistsWithName("u1", "", "fotos", "d1") {
		t.Error("excluded id must not collide with itself")
	}
	// Mesmo nome sob outro pai, ou de outro dono, não colide.
	if c.ExistsWithName("u1", "d1", "fotos", "") {
		t.Error("same name under another parent must not collide")
	}
	if c.ExistsWithName("u2", "", "fotos", "") {
		t.Error("same name for another owner must not collide")
	}
}

func TestSubtreeReturnsBFSOrder(t *testing.T) {
	c := newTestDirectoryCatalog(t)
	// raiz → a → b; raiz → c
	records := []DirectoryMetadata{
		dirMeta("root", "u1", "root", "", "/data/u1/root"),
		dirMeta("a", "u1", "a", "root", "/data/u1/root/a"),
		dirMeta("b", "u1", "b", "a", "/data/u1/root/a/b"),
		dirMeta("c", "u1", "c", "root", "/data/u1/root/c"),
	}
	if err := c.PutBatch(records); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	got := c.Subtree("root")
	if len(got) != 4 {
		t.Fatalf("Subtree returned %d records, want 4", len(got))
	}
	if got[0].ID != "root" {
		t.Errorf("first record = %s, want root", got[0].ID)
	}
	// BFS: os filhos diretos vêm antes dos netos.
	order := map[string]int{}
	for i, d := range got {
		order[d.ID] = i
	}
	if order["a"] > order["b"] {
		t.Error("parent a must come before child b")
	}

	if sub := c.Subtree("missing"); sub != nil {
		t.Errorf("Subtree of unknown id = %v, want nil", sub)
	}
}

func TestSubtreeSurvivesParentCycle(t *testing.T) {
	c := newTestDirectoryCatalog(t)
	// Ciclo acidental de parent_id: a → b → a. A travessia precisa
	// terminar e visitar cada nó uma única vez.
	if err := c.PutBatch([]DirectoryMetadata{
		dirMeta("a", "u1", "a", "b", "/data/u1/a"),
		dirMeta("b", "u1", "b", "a", "/data/u1/b"),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	got := c.Subtree("a")
	if len(got) != 2 {
		t.Fatalf("Subtree returned %d records, want 2", len(got))
	}
}

func TestPutRollsBackWhenPersistFails(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "directories.json")
	c, err := NewDirectoryCatalog(snapPath, testLogger())
	if err != nil {
		t.Fatalf("NewDirectoryCatalog: %v", err)
	}

	// Um diretório no lugar do snapshot faz o rename atômico falhar.
	if err := os.Mkdir(snapPath, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := c.Put(dirMeta("d1", "u1", "Docs", "", "/data/u1/Docs")); err == nil {
		t.Fatal("Put should fail when the snapshot cannot be written")
	}
	if _, ok := c.Get("d1"); ok {
		t.Error("failed Put must not leave the record in memory")
	}
	if c.Count() != 0 {
		t.Errorf("Count = %d after failed Put, want 0", c.Count())
	}
}

func TestDeleteBatchRollsBackWhenPersistFails(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "directories.json")
	c, err := NewDirectoryCatalog(snapPath, testLogger())
	if err != nil {
		t.Fatalf("NewDirectoryCatalog: %v", err)
	}
	if err := c.Put(dirMeta("d1", "u1", "Docs", "", "/data/u1/Docs")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := os.Remove(snapPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.Mkdir(snapPath, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := c.DeleteBatch([]string{"d1"}); err == nil {
		t.Fatal("DeleteBatch should fail when the snapshot cannot be written")
	}
	if _, ok := c.Get("d1"); !ok {
		t.Error("failed DeleteBatch must restore the record in memory")
	}
}

func TestListChildrenSortsByName(t *testing.T) {
	c := newTestDirectoryCatalog(t)
	if err := c.PutBatch([]DirectoryMetadata{
		dirMeta("d2", "u1", "beta", "", "/data/u1/beta"),
		dirMeta("d1", "u1", "alfa", "", "/data/u1/alfa"),
		dirMeta("d3", "u2", "alfa", "", "/data/u2/alfa"),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	got := c.ListChildren("u1", "")
	if len(got) != 2 {
		t.Fatalf("ListChildren returned %d records, want 2", len(got))
	}
	if got[0].Name != "alfa" || got[1].Name != "beta" {
		t.Errorf("children order = %s, %s; want alfa, beta", got[0].Name, got[1].Name)
	}
}
