package driveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const listChildrenPageSize = 200

// ErrInvalidPath is returned when a remote path is empty or has a leading
// slash — both produce malformed API URLs.
var ErrInvalidPath = errors.New("driveapi: invalid remote path (empty or has leading slash)")

func validateRemotePath(remotePath string) error {
	if remotePath == "" || strings.HasPrefix(remotePath, "/") {
		return ErrInvalidPath
	}

	return nil
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

func (c *Client) fetchItem(ctx context.Context, apiPath string) (*Item, error) {
	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("driveapi: decoding item response: %w", err)
	}

	item := ir.toItem()

	return &item, nil
}

// GetItem retrieves a single drive item by ID.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	return c.fetchItem(ctx, fmt.Sprintf("/items/%s", itemID))
}

// GetItemByPath retrieves a drive item by its path relative to the drive
// root. The path must not have a leading slash and must not be empty.
func (c *Client) GetItemByPath(ctx context.Context, remotePath string) (*Item, error) {
	if err := validateRemotePath(remotePath); err != nil {
		return nil, err
	}

	return c.fetchItem(ctx, fmt.Sprintf("/root:/%s:", encodePathSegments(remotePath)))
}

// ListChildren returns all children of a folder, handling pagination
// automatically.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]Item, error) {
	var items []Item

	path := fmt.Sprintf("/items/%s/children?$top=%d", parentID, listChildrenPageSize)

	for path != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, path)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		path = nextPath
	}

	return items, nil
}

func (c *Client) listChildrenPage(ctx context.Context, path string) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("driveapi: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem())
	}

	var nextPath string
	if lcr.NextLink != "" {
		nextPath, err = c.stripBaseURL(lcr.NextLink)
		if err != nil {
			return nil, "", err
		}
	}

	return items, nextPath, nil
}

func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("driveapi: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// ErrMoveNoChanges is returned when MoveItem is called with both
// newParentID and newName empty.
var ErrMoveNoChanges = errors.New("driveapi: MoveItem requires at least one of newParentID or newName")

type moveItemRequest struct {
	ParentReference *moveParentRef `json:"parentReference,omitempty"`
	Name            string         `json:"name,omitempty"`
}

type moveParentRef struct {
	ID string `json:"id"`
}

// MoveItem moves and/or renames an item. At least one of newParentID or
// newName must be non-empty. Used both for the same-location sink's
// rename-to-hide and rename-back-on-failure steps.
func (c *Client) MoveItem(ctx context.Context, itemID, newParentID, newName string) (*Item, error) {
	if newParentID == "" && newName == "" {
		return nil, ErrMoveNoChanges
	}

	req := moveItemRequest{}
	if newParentID != "" {
		req.ParentReference = &moveParentRef{ID: newParentID}
	}

	if newName != "" {
		req.Name = newName
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("driveapi: marshaling move request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPatch, fmt.Sprintf("/items/%s", itemID), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("driveapi: decoding move response: %w", err)
	}

	item := ir.toItem()

	return &item, nil
}

// TrashItem moves an item to the drive's trash. Used both for the
// same-location sink's final delete-of-origin step and for rollback of a
// failed upload.
func (c *Client) TrashItem(ctx context.Context, itemID string) error {
	resp, err := c.Do(ctx, http.MethodDelete, fmt.Sprintf("/items/%s", itemID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("driveapi: draining trash response body: %w", err)
	}

	return nil
}

type syncResponse struct {
	Value    []itemResponse `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
	DeltaLink string        `json:"@odata.deltaLink"` //nolint:tagliatelle // OData annotation key
}

// Sync drains the drive's change stream starting from cursor (empty for an
// initial full sync) and returns the new cursor to resume from: the path of
// the delta link, relative to the base URL. cmd/faststart calls this once
// at startup to drain the initial sync stream before acting on the tree;
// DriveSink calls it repeatedly while confirming renames.
func (c *Client) Sync(ctx context.Context, cursor string) (string, error) {
	path := "/root/delta"
	if cursor != "" {
		path = cursor
	}

	for {
		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return "", err
		}

		var sr syncResponse

		decErr := json.NewDecoder(resp.Body).Decode(&sr)
		resp.Body.Close()

		if decErr != nil {
			return "", fmt.Errorf("driveapi: decoding sync response: %w", decErr)
		}

		if sr.DeltaLink != "" {
			newCursor, stripErr := c.stripBaseURL(sr.DeltaLink)
			if stripErr != nil {
				return "", stripErr
			}

			return newCursor, nil
		}

		if sr.NextLink == "" {
			return "", nil
		}

		path, err = c.stripBaseURL(sr.NextLink)
		if err != nil {
			return "", err
		}
	}
}

type usageResponse struct {
	BytesUsedLast24h int64 `json:"bytesUsedLast24h"`
}

// DailyUsage returns the sum of bytes uploaded in the rolling last 24
// hours, as reported by the drive.
func (c *Client) DailyUsage(ctx context.Context) (int64, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/usage/daily", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var ur usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return 0, fmt.Errorf("driveapi: decoding usage response: %w", err)
	}

	return ur.BytesUsedLast24h, nil
}
