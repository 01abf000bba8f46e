package slskd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Older slskd builds expose download enqueueing under different routes and
// payload shapes. The modern route is tried first; fallbacks only run when
// it fails.
func enqueueEndpoints(username string) []string {
	u := url.PathEscape(username)
	return []string{
		"/transfers/downloads/" + u,
		"/transfers/" + u + "/enqueue",
		"/users/" + u + "/downloads",
		"/users/" + u + "/enqueue",
	}
}

// EnqueueDownloads queues files from one peer. All files go in a single
// request so the daemon treats them as one batch.
func (c *Client) EnqueueDownloads(ctx context.Context, username string, files []TransferFile) error {
	if len(files) == 0 {
		return nil
	}

	var lastErr error
	for i, endpoint := range enqueueEndpoints(username) {
		err := c.do(ctx, http.MethodPost, endpoint, files, nil)
		if err == nil {
			if i > 0 {
				c.log.Debug("download enqueued via legacy endpoint", "endpoint", endpoint)
			}
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrNotFound) {
			continue
		}
		break
	}

	// Some builds want an object wrapper instead of a bare array.
	wrapped := map[string][]TransferFile{"files": files}
	if err := c.do(ctx, http.MethodPost, enqueueEndpoints(username)[0], wrapped, nil); err == nil {
		c.log.Debug("download enqueued via wrapped payload", "username", username)
		return nil
	}

	return fmt.Errorf("enqueue downloads for %s: %w", username, lastErr)
}

// Downloads returns every transfer the daemon knows about, flattened from
// the user/directory hierarchy.
func (c *Client) Downloads(ctx context.Context) ([]DownloadStatus, error) {
	var users []DownloadsResponse
	err := c.do(ctx, http.MethodGet, "/transfers/downloads", nil, &users)
	if err != nil {
		if errors.Is(err, errMalformed) {
			return nil, nil
		}
		return nil, fmt.Errorf("get downloads: %w", err)
	}

	var all []DownloadStatus
	for _, user := range users {
		for _, dir := range user.Directories {
			for _, f := range dir.Files {
				id := f.ID
				if id == "" {
					id = f.Filename
				}
				all = append(all, DownloadStatus{
					ID:               id,
					Username:         user.Username,
					Filename:         f.Filename,
					State:            f.State,
					Size:             f.Size,
					BytesTransferred: f.BytesTransferred,
				})
			}
		}
	}
	return all, nil
}

// CancelDownload cancels a transfer, optionally removing it from the
// daemon's list. A 404 means it already finished or was reaped.
func (c *Client) CancelDownload(ctx context.Context, username, id string, remove bool) error {
	endpoint := "/transfers/downloads/" + url.PathEscape(username) + "/" + url.PathEscape(id) +
		"?remove=" + strconv.FormatBool(remove)
	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if errors.Is(err, ErrNotFound) {
		c.log.Debug("cancel target already gone", "username", username, "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel download: %w", err)
	}
	return nil
}

// ClearCompleted removes finished transfers from the daemon's list.
func (c *Client) ClearCompleted(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, "/transfers/downloads/all/completed", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear completed downloads: %w", err)
	}
	return nil
}
