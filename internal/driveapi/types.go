package driveapi

import (
	"log/slog"
	"time"

	drive "google.golang.org/api/drive/v2"
)

// FolderMimeType marks a Drive object as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// OctetStream is the placeholder MIME type Drive reports when it does not
// know better.
const OctetStream = "application/octet-stream"

// Labels are the Drive label flags of an object.
type Labels struct {
	Starred    bool `json:"starred"`
	Hidden     bool `json:"hidden"`
	Trashed    bool `json:"trashed"`
	Restricted bool `json:"restricted"`
	Viewed     bool `json:"viewed"`
}

// Item is one Drive object, normalized from the v2 files resource.
type Item struct {
	ID          string
	Title       string
	Editable    bool
	Size        int64
	ModifiedAt  time.Time
	MimeType    string
	ETag        string
	DownloadURL string // short-lived and authenticated; NEVER log
	Labels      Labels
	ParentIDs   []string
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

// Children is one listing of a folder: the listing's etag and the child IDs
// in the order the backend returned them.
type Children struct {
	ETag string
	IDs  []string
}

// toItem normalizes a Drive v2 file resource.
func toItem(f *drive.File, logger *slog.Logger) Item {
	item := Item{
		ID:          f.Id,
		Title:       f.Title,
		Editable:    f.Editable,
		Size:        f.FileSize,
		MimeType:    f.MimeType,
		ETag:        f.Etag,
		DownloadURL: f.DownloadUrl,
	}

	if f.Labels != nil {
		item.Labels = Labels{
			Starred:    f.Labels.Starred,
			Hidden:     f.Labels.Hidden,
			Trashed:    f.Labels.Trashed,
			Restricted: f.Labels.Restricted,
			Viewed:     f.Labels.Viewed,
		}
	}

	for _, p := range f.Parents {
		if p != nil {
			item.ParentIDs = append(item.ParentIDs, p.Id)
		}
	}

	item.ModifiedAt = parseTimestamp(f.ModifiedDate, f.Id, logger)

	return item
}

// parseTimestamp parses an RFC3339 modifiedDate. Missing or malformed values
// yield the zero time; a malformed one is logged.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid modifiedDate",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t
}
