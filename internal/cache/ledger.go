package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// NotifiedTTL is how long a notification mark is kept.
// It outlives the year so a mark from this birthday is still present
// on any rescan of the same day.
const NotifiedTTL = 400 * 24 * time.Hour

func (c *Cache) notifiedKey(year int, userID string) string {
	return c.key("notified", strconv.Itoa(year), userID)
}

// MarkNotified records that userID is being greeted for year.
// It returns false when the mark already exists.
func (c *Cache) MarkNotified(ctx context.Context, year int, userID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.notifiedKey(year, userID), time.Now().UTC().Format(time.RFC3339), NotifiedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark notified: %w", err)
	}
	return ok, nil
}

// ReleaseNotified removes the mark so a later run can retry.
func (c *Cache) ReleaseNotified(ctx context.Context, year int, userID string) error {
	if err := c.client.Del(ctx, c.notifiedKey(year, userID)).Err(); err != nil {
		return fmt.Errorf("failed to release notified mark: %w", err)
	}
	return nil
}
