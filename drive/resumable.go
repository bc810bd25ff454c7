package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// uploadChunkSize is the resumable chunk size. The API requires every chunk
// except the last to be a multiple of 256 KiB.
const uploadChunkSize = 1 << 20

// uploadSession carries the state of one resumable upload across retried
// attempts. The session URI survives an attempt failure, so the next attempt
// asks the remote API how much arrived and continues from there instead of
// resending from byte zero.
type uploadSession struct {
	name     string
	mimeType string
	folderID string
	content  []byte
	uri      string
}

// uploadResumable performs one attempt of a resumable upload: start or
// re-join the session, then send the remaining content in chunks.
func (c *Client) uploadResumable(ctx context.Context, s *uploadSession) (*File, error) {
	total := int64(len(s.content))

	var offset int64
	if s.uri == "" {
		uri, err := c.startUploadSession(ctx, s, total)
		if err != nil {
			return nil, err
		}
		s.uri = uri
	} else {
		file, off, err := c.queryUploadOffset(ctx, s, total)
		switch {
		case err == nil && file != nil:
			// A previous attempt finished the transfer before failing.
			return file, nil
		case err == nil:
			offset = off
		case IsNotFound(err):
			// The session expired; start over with a fresh one.
			uri, err := c.startUploadSession(ctx, s, total)
			if err != nil {
				return nil, err
			}
			s.uri = uri
		default:
			return nil, err
		}
	}

	for offset < total {
		end := offset + uploadChunkSize
		if end > total {
			end = total
		}
		file, next, err := c.uploadChunk(ctx, s, offset, end, total)
		if err != nil {
			return nil, err
		}
		if file != nil {
			return file, nil
		}
		offset = next
	}
	return nil, fmt.Errorf("drive: upload session ended without a file response")
}

// startUploadSession creates a resumable session and returns its URI.
func (c *Client) startUploadSession(ctx context.Context, s *uploadSession, total int64) (string, error) {
	body, err := encodeJSON(map[string]any{
		"name":    s.name,
		"parents": []string{s.folderID},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.uploadBaseURL+"/files?uploadType=resumable&fields=id,name,mimeType,parents", body)
	if err != nil {
		return "", fmt.Errorf("drive: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", s.mimeType)
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(total, 10))

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	uri := resp.Header.Get("Location")
	if uri == "" {
		return "", fmt.Errorf("drive: upload session response missing location")
	}
	return uri, nil
}

// queryUploadOffset asks the session how many bytes arrived. It returns the
// completed file when the session already finished, otherwise the offset the
// next chunk must start at.
func (c *Client) queryUploadOffset(ctx context.Context, s *uploadSession, total int64) (*File, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("drive: failed to build request: %w", err)
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPermanentRedirect:
		next := nextChunkOffset(resp.Header.Get("Range"))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, next, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var file File
		if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
			return nil, 0, fmt.Errorf("drive: failed to decode response: %w", err)
		}
		return &file, 0, nil
	default:
		return nil, 0, parseAPIError(resp)
	}
}

// uploadChunk sends content[start:end]. A non-nil file means the session is
// complete; otherwise next is the offset the server expects.
func (c *Client) uploadChunk(ctx context.Context, s *uploadSession, start, end, total int64) (*File, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uri,
		bytes.NewReader(s.content[start:end]))
	if err != nil {
		return nil, 0, fmt.Errorf("drive: failed to build request: %w", err)
	}
	req.ContentLength = end - start
	req.Header.Set("Content-Type", s.mimeType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total))

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPermanentRedirect:
		next := nextChunkOffset(resp.Header.Get("Range"))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, next, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var file File
		if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
			return nil, 0, fmt.Errorf("drive: failed to decode response: %w", err)
		}
		return &file, 0, nil
	default:
		return nil, 0, parseAPIError(resp)
	}
}

// nextChunkOffset parses a session Range header ("bytes=0-N") into the next
// byte to send. A missing header means nothing arrived yet.
func nextChunkOffset(header string) int64 {
	const prefix = "bytes=0-"
	if !strings.HasPrefix(header, prefix) {
		return 0
	}
	last, err := strconv.ParseInt(strings.TrimPrefix(header, prefix), 10, 64)
	if err != nil {
		return 0
	}
	return last + 1
}
