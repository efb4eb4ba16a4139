// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/config"
)

// fakeStore registra as chamadas S3 feitas pelo worker.
type fakeStore struct {
	mu      sync.Mutex
	puts    []s3.PutObjectInput
	deletes []s3.DeleteObjectInput
	putErr  error
}

func (f *fakeStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, *in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, *in)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestUploader(store objectStore, queueSize int) *Uploader {
	return &Uploader{
		client: store,
		cfg: config.MirrorConfig{
			Bucket:        "test-bucket",
			Prefix:        "ndrive",
			QueueSize:     queueSize,
			UploadTimeout: 5 * time.Second,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		jobs:   make(chan job, queueSize),
	}
}

func TestObjectKey(t *testing.T) {
	u := newTestUploader(&fakeStore{}, 1)

	file := catalog.FileMetadata{ID: "abc-123", Name: "report.pdf"}
	got := u.objectKey("alice", file)
	want := "ndrive/alice/abc-123_report.pdf"
	if got != want {
		t.Errorf("expected key %q, got %q", want, got)
	}

	// Prefix vazio não deve gerar barra inicial.
	u.cfg.Prefix = ""
	got = u.objectKey("alice", file)
	want = "alice/abc-123_report.pdf"
	if got != want {
		t.Errorf("expected key %q, got %q", want, got)
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	// Worker parado: a fila de tamanho 1 enche no primeiro job.
	u := newTestUploader(&fakeStore{}, 1)

	if !u.Enqueue("alice", catalog.FileMetadata{ID: "f1"}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if u.Enqueue("alice", catalog.FileMetadata{ID: "f2"}) {
		t.Error("expected enqueue on full queue to fail")
	}
	if u.EnqueueDelete("alice", catalog.FileMetadata{ID: "f3"}) {
		t.Error("expected delete enqueue on full queue to fail")
	}
}

func TestEnqueue_AfterStop(t *testing.T) {
	u := newTestUploader(&fakeStore{}, 4)
	u.Start()
	u.Stop()

	if u.Enqueue("alice", catalog.FileMetadata{ID: "f1"}) {
		t.Error("expected enqueue after stop to fail")
	}
	// Stop repetido não deve panicar.
	u.Stop()
}

func TestWorker_PutAndDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("hello mirror"), 0644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	u := newTestUploader(store, 8)
	u.Start()

	file := catalog.FileMetadata{
		ID:          "f1",
		Name:        "data.bin",
		Path:        path,
		ContentType: "application/octet-stream",
	}
	if !u.Enqueue("bob", file) {
		t.Fatal("enqueue put failed")
	}
	if !u.EnqueueDelete("bob", file) {
		t.Fatal("enqueue delete failed")
	}

	// Stop drena a fila antes de retornar.
	u.Stop()

	if len(store.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(store.puts))
	}
	put := store.puts[0]
	if *put.Bucket != "test-bucket" {
		t.Errorf("expected bucket test-bucket, got %s", *put.Bucket)
	}
	if *put.Key != "ndrive/bob/f1_data.bin" {
		t.Errorf("unexpected put key %s", *put.Key)
	}
	if put.ContentType == nil || *put.ContentType != "application/octet-stream" {
		t.Error("expected content type to be forwarded")
	}

	if len(store.deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(store.deletes))
	}
	if *store.deletes[0].Key != "ndrive/bob/f1_data.bin" {
		t.Errorf("unexpected delete key %s", *store.deletes[0].Key)
	}
}

func TestWorker_PutFailureDoesNotStopQueue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{putErr: errors.New("bucket unavailable")}
	u := newTestUploader(store, 8)
	u.Start()

	file := catalog.FileMetadata{ID: "f1", Name: "data.bin", Path: path}
	if !u.Enqueue("bob", file) {
		t.Fatal("enqueue failed")
	}
	// O delete depois da falha ainda deve rodar.
	if !u.EnqueueDelete("bob", file) {
		t.Fatal("enqueue delete failed")
	}
	u.Stop()

	if len(store.deletes) != 1 {
		t.Fatalf("expected delete to run after put failure, got %d", len(store.deletes))
	}
	if u.failed != 1 {
		t.Errorf("expected 1 failed job, got %d", u.failed)
	}
	if u.done != 1 {
		t.Errorf("expected 1 done job, got %d", u.done)
	}
}

func TestWorker_MissingLocalFile(t *testing.T) {
	store := &fakeStore{}
	u := newTestUploader(store, 2)
	u.Start()

	if !u.Enqueue("bob", catalog.FileMetadata{ID: "f1", Name: "gone.bin", Path: "/nonexistent/gone.bin"}) {
		t.Fatal("enqueue failed")
	}
	u.Stop()

	if len(store.puts) != 0 {
		t.Errorf("expected no puts for missing file, got %d", len(store.puts))
	}
	if u.failed != 1 {
		t.Errorf("expected 1 failed job, got %d", u.failed)
	}
}
