package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestWorkspaceStageAndCleanup(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}

	path, err := ws.Stage("../../etc/clip one.mp4", strings.NewReader("video-bytes"), 1024)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if filepath.Dir(path) != ws.Dir() {
		t.Fatalf("expected staged file inside workspace, got %s", path)
	}
	if filepath.Base(path) != "clip_one.mp4" {
		t.Fatalf("unexpected staged name %s", filepath.Base(path))
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err %v", err)
	}
	if err := ws.Cleanup(); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
}

func TestWorkspaceStageRejectsOversizeAndEmpty(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "run-2")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	defer ws.Cleanup()

	_, err = ws.Stage("big.mp4", bytes.NewReader(make([]byte, 11)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(ws.Path("big.mp4")); !os.IsNotExist(statErr) {
		t.Fatal("expected partial file removed")
	}

	if _, err := ws.Stage("empty.mp4", strings.NewReader(""), 10); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestLocalStorageSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "thumbs")
	store, err := NewLocalStorage(dir, "http://localhost:8080/uploads/thumbnails/")
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	url, err := store.Save(context.Background(), "thumbnails/abc.jpg", "image/jpeg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if url != "http://localhost:8080/uploads/thumbnails/abc.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "abc.jpg"))
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("unexpected stored content %q err %v", data, err)
	}
}

type stubUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (s *stubUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	s.input = input
	data, _ := io.ReadAll(input.Body)
	s.body = string(data)
	if s.err != nil {
		return nil, s.err
	}
	return &manager.UploadOutput{}, nil
}

func TestS3StorageSave(t *testing.T) {
	uploader := &stubUploader{}
	store := &S3Storage{uploader: uploader, bucket: "thumbs", baseURL: "https://cdn.example.com"}

	url, err := store.Save(context.Background(), "/thumbnails/abc.jpg", "image/jpeg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if url != "https://cdn.example.com/thumbnails/abc.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
	if *uploader.input.Bucket != "thumbs" || *uploader.input.Key != "thumbnails/abc.jpg" || *uploader.input.ContentType != "image/jpeg" {
		t.Fatalf("unexpected upload input %+v", uploader.input)
	}
	if uploader.body != "jpeg" {
		t.Fatalf("unexpected body %q", uploader.body)
	}

	uploader.err = errors.New("denied")
	if _, err := store.Save(context.Background(), "x.jpg", "image/jpeg", strings.NewReader("jpeg")); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := store.Save(context.Background(), "/", "image/jpeg", strings.NewReader("jpeg")); err == nil {
		t.Fatal("expected error for empty key")
	}
}
