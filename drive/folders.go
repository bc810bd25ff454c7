package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/drivebridge/drivebridge/cache"
	"github.com/drivebridge/drivebridge/observe"
)

// escapeQuery escapes a value for use inside a single-quoted API query term.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// FindFolder looks up a non-trashed folder by name under the given parent.
// Returns (nil, nil) when no folder matches.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (*File, error) {
	return call(ctx, c, "find_folder", func(ctx context.Context) (*File, error) {
		return c.findByQuery(ctx, fmt.Sprintf(
			"name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
			escapeQuery(name), folderMimeType, escapeQuery(parentID),
		))
	})
}

// CreateFolder creates a folder under the given parent and returns it.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*File, error) {
	return call(ctx, c, "create_folder", func(ctx context.Context) (*File, error) {
		body, err := encodeJSON(map[string]any{
			"name":     name,
			"mimeType": folderMimeType,
			"parents":  []string{parentID},
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files?fields=id,name,mimeType,parents", body)
		if err != nil {
			return nil, fmt.Errorf("drive: failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		var folder File
		if err := c.doJSON(ctx, req, &folder); err != nil {
			return nil, err
		}
		return &folder, nil
	})
}

// EnsureFolderPath resolves a path like "reports/2026/q3" to a folder ID,
// creating missing segments along the way. The empty path resolves to the
// drive root.
//
// Cached IDs are used when present, and concurrent resolutions of the same
// path share one walk.
func (c *Client) EnsureFolderPath(ctx context.Context, folderPath string) (string, error) {
	segments := cache.Segments(folderPath)
	if len(segments) == 0 {
		return RootFolderID, nil
	}

	if id, ok := c.cachedID(ctx, folderPath); ok {
		return id, nil
	}

	key := cache.NormalizePath(folderPath)
	id, err, _ := c.resolving.Do(key, func() (any, error) {
		// Another goroutine may have resolved the path while this one
		// waited on the flight group.
		if id, ok := c.cachedID(ctx, folderPath); ok {
			return id, nil
		}
		return c.walkPath(ctx, segments, folderPath)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

// walkPath find-or-creates each segment from the root down.
func (c *Client) walkPath(ctx context.Context, segments []string, folderPath string) (string, error) {
	parentID := RootFolderID
	for _, name := range segments {
		folder, err := c.FindFolder(ctx, name, parentID)
		if err != nil {
			return "", err
		}
		if folder == nil {
			folder, err = c.CreateFolder(ctx, name, parentID)
			if err != nil {
				return "", err
			}
			c.logger.Info(ctx, "created folder",
				observe.F("name", name), observe.F("id", folder.ID))
		}
		parentID = folder.ID
	}

	c.storeID(ctx, folderPath, parentID)
	return parentID, nil
}

// ResolveFolderPath resolves a path to a folder ID without creating missing
// segments. Returns ErrFolderNotFound when any segment is absent.
func (c *Client) ResolveFolderPath(ctx context.Context, folderPath string) (string, error) {
	segments := cache.Segments(folderPath)
	if len(segments) == 0 {
		return RootFolderID, nil
	}

	if id, ok := c.cachedID(ctx, folderPath); ok {
		return id, nil
	}

	parentID := RootFolderID
	for _, name := range segments {
		folder, err := c.FindFolder(ctx, name, parentID)
		if err != nil {
			return "", err
		}
		if folder == nil {
			return "", fmt.Errorf("%w: %s", ErrFolderNotFound, cache.NormalizePath(folderPath))
		}
		parentID = folder.ID
	}

	c.storeID(ctx, folderPath, parentID)
	return parentID, nil
}

// DeleteFolder resolves a folder path and deletes the folder. Deleting a path
// that no longer exists is not an error. The cache entry is dropped either
// way.
func (c *Client) DeleteFolder(ctx context.Context, folderPath string) error {
	id, err := c.ResolveFolderPath(ctx, folderPath)
	if err != nil {
		if isMissing(err) {
			c.dropID(ctx, folderPath)
			return nil
		}
		return err
	}
	if id == RootFolderID {
		return fmt.Errorf("drive: refusing to delete the root folder")
	}

	if err := c.deleteByID(ctx, "delete_folder", id); err != nil {
		return err
	}
	c.dropID(ctx, folderPath)
	c.logger.Info(ctx, "deleted folder",
		observe.F("path", cache.NormalizePath(folderPath)), observe.F("id", id))
	return nil
}

// deleteByID issues a DELETE for the given file or folder ID. A 404 means
// the object is already gone and counts as success.
func (c *Client) deleteByID(ctx context.Context, op, id string) error {
	_, err := call(ctx, c, op, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			c.baseURL+"/files/"+url.PathEscape(id), nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("drive: failed to build request: %w", err)
		}
		if err := c.doJSON(ctx, req, nil); err != nil && !IsNotFound(err) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// findByQuery runs a files.list query and returns the first match, or nil.
func (c *Client) findByQuery(ctx context.Context, query string) (*File, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "files(id,name,mimeType,parents)")
	params.Set("pageSize", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to build request: %w", err)
	}

	var result struct {
		Files []File `json:"files"`
	}
	if err := c.doJSON(ctx, req, &result); err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		return nil, nil
	}
	return &result.Files[0], nil
}

func (c *Client) cachedID(ctx context.Context, folderPath string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	key, err := cache.PathKey(RootFolderID, folderPath)
	if err != nil {
		return "", false
	}
	return c.cache.Get(ctx, key)
}

func (c *Client) storeID(ctx context.Context, folderPath, id string) {
	if c.cache == nil {
		return
	}
	key, err := cache.PathKey(RootFolderID, folderPath)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, id, c.cacheTTL); err != nil {
		c.logger.Warn(ctx, "failed to cache folder id", observe.F("error", err.Error()))
	}
}

func (c *Client) dropID(ctx context.Context, folderPath string) {
	if c.cache == nil {
		return
	}
	key, err := cache.PathKey(RootFolderID, folderPath)
	if err != nil {
		return
	}
	_ = c.cache.Delete(ctx, key)
}
