package engine

import (
	"fmt"
	"math"
	"time"

	"tableside/internal/domain"
)

// RemainingMS derives the countdown from the stored {minutes, set-at} pair.
// Delivered and cancelled orders always report zero, even with a stale ETA
// still on the row.
func RemainingMS(o domain.Order, now time.Time) int64 {
	if o.Status == domain.StatusDelivered || o.Status == domain.StatusCancelled {
		return 0
	}
	if o.ETA == nil || o.ETA.Minutes <= 0 {
		return 0
	}
	setAt, err := time.Parse(time.RFC3339, o.ETA.SetAt)
	if err != nil {
		return 0
	}
	end := setAt.Add(time.Duration(o.ETA.Minutes) * time.Minute)
	rem := end.Sub(now)
	if rem < 0 {
		return 0
	}
	return rem.Milliseconds()
}

// ETAProgress is the elapsed fraction of the ETA window, clamped to [0, 1],
// for countdown bars. An order with no usable ETA reports zero.
func ETAProgress(o domain.Order, now time.Time) float64 {
	if o.ETA == nil || o.ETA.Minutes <= 0 {
		return 0
	}
	if o.Status == domain.StatusDelivered || o.Status == domain.StatusCancelled {
		return 0
	}
	setAt, err := time.Parse(time.RFC3339, o.ETA.SetAt)
	if err != nil {
		return 0
	}
	total := time.Duration(o.ETA.Minutes) * time.Minute
	frac := float64(now.Sub(setAt)) / float64(total)
	return math.Min(1, math.Max(0, frac))
}

// FormatCountdown renders milliseconds as m:ss for terminal output.
func FormatCountdown(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
