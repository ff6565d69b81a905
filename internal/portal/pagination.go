package portal

import (
	"context"
	"encoding/json"

	"github.com/rmacedof/fuelsync/internal/models"
	"go.uber.org/zap"
)

// FetchAll walks every page of a portal search endpoint. makePayload builds
// the request body for a given 1-based page number; pageSize must match the
// size inside that payload.
//
// The loop stops when a page comes back empty, when the accumulated count
// reaches the server-reported total, or when a page is shorter than the page
// size. A request that still fails after retries aborts this resource's
// pagination and returns whatever was accumulated together with the error:
// partial results are policy, one failing resource must not sink a batch.
func (c *Client) FetchAll(ctx context.Context, path string, pageSize int, makePayload func(page int) any) ([]json.RawMessage, error) {
	var records []json.RawMessage

	for page := 1; ; page++ {
		var resp models.PageResponse
		if err := c.PostJSONRetry(ctx, path, makePayload(page), &resp); err != nil {
			c.logger.Warn("Pagination aborted, keeping partial results",
				zap.String("path", path),
				zap.Int("page", page),
				zap.Int("accumulated", len(records)),
				zap.Error(err))
			return records, err
		}

		if len(resp.Records) == 0 {
			break
		}
		records = append(records, resp.Records...)

		if len(records) >= resp.TotalItems || len(resp.Records) < pageSize {
			break
		}
	}

	return records, nil
}
