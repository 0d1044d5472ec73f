package driveapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	drive "google.golang.org/api/drive/v2"
)

// childrenQuery hides trashed objects from folder listings.
const childrenQuery = "trashed=false"

// maxChildPages bounds pagination against a backend that keeps returning
// the same page token.
const maxChildPages = 10000

// GetItem fetches one object's metadata (GET /files/{id}).
func (c *Client) GetItem(ctx context.Context, id string) (Item, error) {
	var f drive.File
	if err := c.Execute(ctx, http.MethodGet, c.fileURL(id), nil, &f); err != nil {
		return Item{}, err
	}

	return toItem(&f, c.logger), nil
}

// ListChildren lists a folder's non-trashed children
// (GET /files/{id}/children?q=trashed=false), following nextPageToken.
// The returned etag is the first page's.
func (c *Client) ListChildren(ctx context.Context, id string) (*Children, error) {
	out := &Children{}
	pageToken := ""

	for page := 0; page < maxChildPages; page++ {
		q := url.Values{"q": {childrenQuery}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var list drive.ChildList
		if err := c.Execute(ctx, http.MethodGet, c.fileURL(id)+"/children?"+q.Encode(), nil, &list); err != nil {
			return nil, err
		}

		if page == 0 {
			out.ETag = list.Etag
		}

		for _, ref := range list.Items {
			if ref != nil && ref.Id != "" {
				out.IDs = append(out.IDs, ref.Id)
			}
		}

		if list.NextPageToken == "" || list.NextPageToken == pageToken {
			return out, nil
		}

		pageToken = list.NextPageToken
	}

	return nil, fmt.Errorf("driveapi: listing %s: more than %d pages", id, maxChildPages)
}

// CreateItem creates an empty object named title under parentID
// (POST /files). An empty mimeType lets the backend choose.
func (c *Client) CreateItem(ctx context.Context, parentID, title, mimeType string) (Item, error) {
	body := &drive.File{
		Title:    title,
		MimeType: mimeType,
		Parents:  []*drive.ParentReference{{Id: parentID}},
	}

	var f drive.File
	if err := c.Execute(ctx, http.MethodPost, c.baseURL+"/files", body, &f); err != nil {
		return Item{}, err
	}

	c.logger.Debug("created item",
		slog.String("item_id", f.Id),
		slog.String("parent_id", parentID),
	)

	return toItem(&f, c.logger), nil
}

func (c *Client) fileURL(id string) string {
	return c.baseURL + "/files/" + url.PathEscape(id)
}
