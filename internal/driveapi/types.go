package driveapi

import (
	"encoding/json"
	"time"

	"github.com/legnaleurc/faststart/internal/model"
)

// ChildCountUnknown marks Item.ChildCount as not applicable (file, not folder).
const ChildCountUnknown = -1

// Item is the normalized remote drive node used throughout the engine.
type Item struct {
	ID            string
	Name          string
	Size          int64
	ParentID      string
	MimeType      string
	QuickXorHash  string
	SHA1Hash      string
	SHA256Hash    string
	IsFolder      bool
	IsTrashed     bool
	ChildCount    int
	DownloadURL   string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// itemResponse mirrors the drive API's item JSON exactly. Unexported —
// callers use Item via toItem() normalization.
type itemResponse struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Size             int64            `json:"size"`
	CreatedDateTime  string           `json:"createdDateTime"`
	ModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference  *parentRef       `json:"parentReference"`
	File             *fileFacet       `json:"file"`
	Folder           *folderFacet     `json:"folder"`
	Deleted          *json.RawMessage `json:"deleted"`
	DownloadURL      string           `json:"@content.downloadUrl"`
}

type parentRef struct {
	ID string `json:"id"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
	SHA1Hash     string `json:"sha1Hash"`
	SHA256Hash   string `json:"sha256Hash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type listChildrenResponse struct {
	Value    []itemResponse `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// toItem normalizes an API item response into Item.
func (r *itemResponse) toItem() Item {
	item := Item{
		ID:          r.ID,
		Name:        r.Name,
		Size:        r.Size,
		IsFolder:    r.Folder != nil,
		IsTrashed:   r.Deleted != nil,
		ChildCount:  ChildCountUnknown,
		DownloadURL: r.DownloadURL,
		MimeType:    model.OctetStream,
	}

	if r.ParentReference != nil {
		item.ParentID = r.ParentReference.ID
	}

	if r.Folder != nil {
		item.ChildCount = r.Folder.ChildCount
	}

	if r.File != nil {
		if r.File.MimeType != "" {
			item.MimeType = r.File.MimeType
		}

		if r.File.Hashes != nil {
			item.QuickXorHash = r.File.Hashes.QuickXorHash
			item.SHA1Hash = r.File.Hashes.SHA1Hash
			item.SHA256Hash = r.File.Hashes.SHA256Hash
		}
	}

	item.CreatedAt = parseTimestamp(r.CreatedDateTime)
	item.ModifiedAt = parseTimestamp(r.ModifiedDateTime)

	return item
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return t
}

// SelectHash returns the best available content hash from the item,
// preferring QuickXorHash (the drive's native algorithm), falling back to
// SHA256, then SHA1. Returns empty string if no hash is available — the
// caller must handle hash-less items by skipping verification.
func (i Item) SelectHash() string {
	if i.QuickXorHash != "" {
		return i.QuickXorHash
	}

	if i.SHA256Hash != "" {
		return i.SHA256Hash
	}

	return i.SHA1Hash
}
