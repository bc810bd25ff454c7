package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/drivebridge/drivebridge/observe"
)

// UploadRequest describes a file upload.
type UploadRequest struct {
	// Name is the file name in the target folder.
	Name string

	// FolderPath is the destination folder path, created if missing.
	// Empty means the drive root.
	FolderPath string

	// Content is the file content. It is read fully before the upload so
	// retried attempts resend identical bytes.
	Content io.Reader

	// MimeType is the content type. Default: application/octet-stream.
	MimeType string

	// Overwrite deletes an existing file with the same name in the target
	// folder before uploading.
	Overwrite bool
}

// FindFile looks up a non-trashed file by name under the given parent folder.
// Returns (nil, nil) when no file matches.
func (c *Client) FindFile(ctx context.Context, name, parentID string) (*File, error) {
	return call(ctx, c, "find_file", func(ctx context.Context) (*File, error) {
		return c.findByQuery(ctx, fmt.Sprintf(
			"name = '%s' and '%s' in parents and trashed = false and mimeType != '%s'",
			escapeQuery(name), escapeQuery(parentID), folderMimeType,
		))
	})
}

// UploadFile uploads a file into the folder named by req.FolderPath, creating
// the folder path if needed. With Overwrite set, an existing file with the
// same name is deleted first; without it, the upload creates a sibling copy
// the way the remote API does natively.
//
// Content at or above the client's resumable threshold is sent through a
// resumable session, so a retried attempt continues from the last byte the
// remote API confirmed. Smaller content goes in one multipart request.
//
// The upload itself runs inside the bulkhead when one is configured.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (*File, error) {
	if req.Name == "" {
		return nil, errors.New("drive: file name is required")
	}
	if req.Content == nil {
		return nil, errors.New("drive: file content is required")
	}
	if req.MimeType == "" {
		req.MimeType = "application/octet-stream"
	}

	content, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to read upload content: %w", err)
	}

	folderID, err := c.EnsureFolderPath(ctx, req.FolderPath)
	if err != nil {
		return nil, err
	}

	if req.Overwrite {
		existing, err := c.FindFile(ctx, req.Name, folderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := c.deleteByID(ctx, "delete_file", existing.ID); err != nil {
				return nil, err
			}
			c.logger.Info(ctx, "replaced existing file",
				observe.F("name", req.Name), observe.F("id", existing.ID))
		}
	}

	upload := func(ctx context.Context) (*File, error) {
		return c.uploadMultipart(ctx, req.Name, req.MimeType, folderID, content)
	}
	if int64(len(content)) >= c.resumableThreshold {
		session := &uploadSession{
			name:     req.Name,
			mimeType: req.MimeType,
			folderID: folderID,
			content:  content,
		}
		upload = func(ctx context.Context) (*File, error) {
			return c.uploadResumable(ctx, session)
		}
	}
	if c.bulkhead != nil {
		guarded := upload
		upload = func(ctx context.Context) (*File, error) {
			if err := c.bulkhead.Acquire(ctx); err != nil {
				return nil, err
			}
			defer c.bulkhead.Release()
			return guarded(ctx)
		}
	}

	file, err := call(ctx, c, "upload_file", upload)
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "uploaded file",
		observe.F("name", file.Name), observe.F("id", file.ID),
		observe.F("bytes", len(content)))
	return file, nil
}

// uploadMultipart performs one multipart/related upload attempt.
func (c *Client) uploadMultipart(ctx context.Context, name, mimeType, folderID string, content []byte) (*File, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	meta, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("drive: failed to build upload body: %w", err)
	}
	if err := json.NewEncoder(meta).Encode(map[string]any{
		"name":    name,
		"parents": []string{folderID},
	}); err != nil {
		return nil, fmt.Errorf("drive: failed to encode file metadata: %w", err)
	}

	media, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return nil, fmt.Errorf("drive: failed to build upload body: %w", err)
	}
	if _, err := media.Write(content); err != nil {
		return nil, fmt.Errorf("drive: failed to write upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("drive: failed to finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.uploadBaseURL+"/files?uploadType=multipart&fields=id,name,mimeType,parents", &body)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	var file File
	if err := c.doJSON(ctx, req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile deletes a file by name within the given folder path. A file or
// path that no longer exists counts as success.
func (c *Client) DeleteFile(ctx context.Context, name, folderPath string) error {
	folderID, err := c.ResolveFolderPath(ctx, folderPath)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return err
	}

	file, err := c.FindFile(ctx, name, folderID)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}
	return c.deleteByID(ctx, "delete_file", file.ID)
}

// isMissing reports whether err means the target does not exist remotely.
func isMissing(err error) bool {
	return errors.Is(err, ErrFolderNotFound) || IsNotFound(err)
}

// encodeJSON marshals v into a reader for a request body.
func encodeJSON(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}
