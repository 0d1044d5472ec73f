package driveapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	drive "google.golang.org/api/drive/v2"
)

// OpenDownload opens an authenticated GET on an object's download URL. A
// non-empty rangeHeader is sent as the Range header. Statuses >= 400 are
// returned as *APIError with the body already closed; otherwise the caller
// owns resp.Body.
func (c *Client) OpenDownload(ctx context.Context, downloadURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("driveapi: creating download request: %w", err)
	}

	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(req, resp)
	}

	c.count("ok")

	return resp, nil
}

// Upload replaces an object's content with body
// (PUT {upload}/files/{id}?uploadType=media). Only a 200 counts as success.
func (c *Client) Upload(ctx context.Context, id string, body io.Reader) (Item, error) {
	u := c.uploadURL + "/files/" + url.PathEscape(id) + "?" + url.Values{"uploadType": {"media"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, body)
	if err != nil {
		return Item{}, fmt.Errorf("driveapi: creating upload request: %w", err)
	}

	req.Header.Set("Content-Type", OctetStream)

	resp, err := c.do(ctx, req)
	if err != nil {
		return Item{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Item{}, c.statusError(req, resp)
	}

	c.count("ok")

	var f drive.File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		// The content is stored; only the echo of its metadata is unusable.
		c.logger.Warn("upload response not decodable",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)

		return Item{ID: id}, nil
	}

	return toItem(&f, c.logger), nil
}
