package driveapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/legnaleurc/faststart/pkg/quickxorhash"
)

// UploadFile uploads the file at localPath as a child of parentID with the
// given name and mime type, attaching description as item metadata
// (media_info tagging, per the sink's store contract). Returns the created
// item, including its server-reported content hash for verification.
func (c *Client) UploadFile(ctx context.Context, parentID, name, mimeType, description string, localPath string) (*Item, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("driveapi: opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("driveapi: stat %s: %w", localPath, err)
	}

	path := fmt.Sprintf("/items/%s:/%s:/content?description=%s", parentID, url.PathEscape(name), url.QueryEscape(description))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, f)
	if err != nil {
		return nil, fmt.Errorf("driveapi: creating upload request: %w", err)
	}

	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", mimeType)

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("driveapi: obtaining token for upload: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("driveapi: uploading %s: %w", localPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return nil, &DriveError{StatusCode: resp.StatusCode, Message: string(body), Err: classifyStatus(resp.StatusCode)}
	}

	var ir itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("driveapi: decoding upload response: %w", err)
	}

	item := ir.toItem()

	return &item, nil
}

// DownloadFile fetches item's content bytes and writes them to destPath
// using the pre-authenticated DownloadURL (no Authorization header needed —
// the URL itself is pre-authenticated). The download is a single request;
// unlike authenticated calls made through Do, it is not retried.
func (c *Client) DownloadFile(ctx context.Context, item Item, destPath string) error {
	if item.DownloadURL == "" {
		fresh, err := c.GetItem(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("driveapi: refreshing download URL for %s: %w", item.ID, err)
		}

		item = *fresh
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("driveapi: creating %s: %w", destPath, err)
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("driveapi: creating download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("driveapi: downloading %s: %w", item.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &DriveError{StatusCode: resp.StatusCode, Err: classifyStatus(resp.StatusCode)}
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("driveapi: writing %s: %w", destPath, err)
	}

	return nil
}

// ComputeQuickXorHash computes the drive-native content hash of a local
// file and returns the base64-encoded digest. Uses streaming I/O (constant
// memory) so it scales to large media files.
func ComputeQuickXorHash(localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("driveapi: opening %s for hashing: %w", localPath, err)
	}
	defer f.Close()

	h := quickxorhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("driveapi: hashing %s: %w", localPath, err)
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
