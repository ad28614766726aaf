// Package bucket groups readings into minute buckets by arrival time.
package bucket

import (
	"sort"
	"time"

	"github.com/khushi89012/syook/listener/internal/models"
)

// MinuteOf floors t to the minute, in UTC.
func MinuteOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Group buckets readings by MinuteOf(Timestamp). Buckets come back in
// ascending minute order and keep the input order of their records.
func Group(readings []models.Reading) []models.MinuteBucket {
	if len(readings) == 0 {
		return nil
	}

	index := make(map[time.Time]int)
	var buckets []models.MinuteBucket
	for _, r := range readings {
		minute := MinuteOf(r.Timestamp)
		i, ok := index[minute]
		if !ok {
			i = len(buckets)
			index[minute] = i
			buckets = append(buckets, models.MinuteBucket{Minute: minute})
		}
		buckets[i].Records = append(buckets[i].Records, r)
	}

	sort.SliceStable(buckets, func(a, b int) bool {
		return buckets[a].Minute.Before(buckets[b].Minute)
	})
	return buckets
}
