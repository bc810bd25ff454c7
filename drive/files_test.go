package drive

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/drivebridge/drivebridge/resilience"
)

func TestUploadFile(t *testing.T) {
	f := newFakeDrive(t)
	client := testClient(t, f)

	content := []byte("quarterly numbers")
	file, err := client.UploadFile(context.Background(), UploadRequest{
		Name:       "report.csv",
		FolderPath: "reports/2026",
		Content:    bytes.NewReader(content),
		MimeType:   "text/csv",
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if file.ID == "" || file.Name != "report.csv" {
		t.Errorf("UploadFile() = %+v", file)
	}

	f.mu.Lock()
	meta, got := f.lastUploadMeta, f.lastUploadContent
	f.mu.Unlock()

	if !bytes.Equal(got, content) {
		t.Errorf("uploaded content = %q, want %q", got, content)
	}
	if meta["name"] != "report.csv" {
		t.Errorf("metadata name = %v", meta["name"])
	}
	parents, ok := meta["parents"].([]any)
	if !ok || len(parents) != 1 || parents[0] == "root" {
		t.Errorf("metadata parents = %v, want resolved folder id", meta["parents"])
	}
}

func TestUploadFileToRoot(t *testing.T) {
	f := newFakeDrive(t)
	client := testClient(t, f)

	_, err := client.UploadFile(context.Background(), UploadRequest{
		Name:    "notes.txt",
		Content: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	f.mu.Lock()
	parents := f.lastUploadMeta["parents"].([]any)
	f.mu.Unlock()
	if parents[0] != "root" {
		t.Errorf("parents = %v, want root", parents)
	}
}

func TestUploadFileValidation(t *testing.T) {
	f := newFakeDrive(t)
	client := testClient(t, f)

	if _, err := client.UploadFile(context.Background(), UploadRequest{
		Content: strings.NewReader("x"),
	}); err == nil {
		t.Error("UploadFile() without name succeeded, want error")
	}
	if _, err := client.UploadFile(context.Background(), UploadRequest{
		Name: "x.txt",
	}); err == nil {
		t.Error("UploadFile() without content succeeded, want error")
	}
}

func TestUploadFileOverwriteDeletesExisting(t *testing.T) {
	f := newFakeDrive(t)
	folder := f.addFolder("reports", "root")
	existing := f.addFile("report.csv", folder.ID)
	client := testClient(t, f)

	_, err := client.UploadFile(context.Background(), UploadRequest{
		Name:       "report.csv",
		FolderPath: "reports",
		Content:    strings.NewReader("v2"),
		Overwrite:  true,
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	f.mu.Lock()
	_, stillThere := f.files[existing.ID]
	deletes := f.deleteCalls
	f.mu.Unlock()
	if stillThere {
		t.Error("existing file survived overwrite upload")
	}
	if deletes != 1 {
		t.Errorf("deleteCalls = %d, want 1", deletes)
	}
}

func TestUploadFileWithoutOverwriteKeepsExisting(t *testing.T) {
	f := newFakeDrive(t)
	folder := f.addFolder("reports", "root")
	existing := f.addFile("report.csv", folder.ID)
	client := testClient(t, f)

	_, err := client.UploadFile(context.Background(), UploadRequest{
		Name:       "report.csv",
		FolderPath: "reports",
		Content:    strings.NewReader("v2"),
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	f.mu.Lock()
	_, stillThere := f.files[existing.ID]
	f.mu.Unlock()
	if !stillThere {
		t.Error("existing file deleted without Overwrite")
	}
}

func TestUploadFileRetriesTransientFailure(t *testing.T) {
	f := newFakeDrive(t)
	f.addFolder("reports", "root")
	client := testClient(t, f)

	// Fail the upload attempt only: resolve the folder first so the
	// injected failures land on the upload call.
	if _, err := client.EnsureFolderPath(context.Background(), "reports"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.failRemaining = 1
	f.mu.Unlock()

	_, err := client.UploadFile(context.Background(), UploadRequest{
		Name:       "report.csv",
		FolderPath: "reports",
		Content:    strings.NewReader("payload"),
	})
	if err != nil {
		t.Fatalf("UploadFile() after transient failure = %v", err)
	}

	f.mu.Lock()
	uploads := f.uploadCalls
	content := f.lastUploadContent
	f.mu.Unlock()
	if uploads != 1 {
		t.Errorf("successful uploadCalls = %d, want 1", uploads)
	}
	if string(content) != "payload" {
		t.Errorf("retried upload content = %q, want identical bytes", content)
	}
}

func TestUploadFileBulkhead(t *testing.T) {
	f := newFakeDrive(t)
	bulkhead, err := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}
	client := testClient(t, f, func(c *Config) { c.Bulkhead = bulkhead })

	if _, err := client.UploadFile(context.Background(), UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("a"),
	}); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	snap := bulkhead.Snapshot()
	if snap.Active != 0 {
		t.Errorf("bulkhead Active = %d after upload, want 0", snap.Active)
	}
}

func TestFindFile(t *testing.T) {
	f := newFakeDrive(t)
	folder := f.addFolder("reports", "root")
	file := f.addFile("report.csv", folder.ID)
	client := testClient(t, f)

	got, err := client.FindFile(context.Background(), "report.csv", folder.ID)
	if err != nil {
		t.Fatalf("FindFile() error = %v", err)
	}
	if got == nil || got.ID != file.ID {
		t.Errorf("FindFile() = %+v, want id %s", got, file.ID)
	}

	// Folder with the same name must not match.
	f.addFolder("data", folder.ID)
	missing, err := client.FindFile(context.Background(), "data", folder.ID)
	if err != nil {
		t.Fatalf("FindFile() error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindFile() matched a folder: %+v", missing)
	}
}

func TestDeleteFile(t *testing.T) {
	f := newFakeDrive(t)
	folder := f.addFolder("reports", "root")
	file := f.addFile("report.csv", folder.ID)
	client := testClient(t, f)

	if err := client.DeleteFile(context.Background(), "report.csv", "reports"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}

	f.mu.Lock()
	_, exists := f.files[file.ID]
	f.mu.Unlock()
	if exists {
		t.Error("file still exists after DeleteFile()")
	}
}

func TestDeleteFileMissingIsSuccess(t *testing.T) {
	f := newFakeDrive(t)
	f.addFolder("reports", "root")
	client := testClient(t, f)

	if err := client.DeleteFile(context.Background(), "ghost.txt", "reports"); err != nil {
		t.Errorf("DeleteFile(missing file) = %v, want nil", err)
	}
	if err := client.DeleteFile(context.Background(), "ghost.txt", "no/such/path"); err != nil {
		t.Errorf("DeleteFile(missing path) = %v, want nil", err)
	}
}
