package redis

import (
	"context"
	"fmt"
	"time"
)

// DailyCounter enforces per-subject daily generation caps with a
// day-keyed INCR. The key expires at the next day boundary, so the
// count resets itself without a sweeper.
type DailyCounter struct {
	client RedisClient
}

func NewDailyCounter(client RedisClient) *DailyCounter {
	return &DailyCounter{client: client}
}

// Allow increments the subject's counter for today and reports whether
// the new total is within the cap. The increment is atomic, so two
// controller instances cannot both take the last slot.
func (d *DailyCounter) Allow(ctx context.Context, subjectID string, cap int) (bool, error) {
	key := dailyKey(subjectID, time.Now())
	count, err := d.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := d.client.Expire(ctx, key, untilMidnight(time.Now())); err != nil {
			return false, err
		}
	}
	return count <= int64(cap), nil
}

// Count returns today's generation count for a subject.
func (d *DailyCounter) Count(ctx context.Context, subjectID string) (int, error) {
	v, err := d.client.Get(ctx, dailyKey(subjectID, time.Now()))
	if err != nil {
		return 0, nil // missing key means zero today
	}
	var n int
	_, _ = fmt.Sscanf(v, "%d", &n)
	return n, nil
}

func dailyKey(subjectID string, now time.Time) string {
	return fmt.Sprintf("daily_gen:%s:%s", subjectID, now.Format("2006-01-02"))
}

func untilMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	return next.Sub(now)
}
