// Package stats aggregates a monitor's check log into uptime and latency figures.
package stats

import (
	"errors"
	"math"
	"time"

	"uptimewatch/internal/models"
)

// RecentResponseTimes is how many of the latest checks are returned as latency samples.
const RecentResponseTimes = 50

// ErrUnknownRange is returned by ParseRange for anything but 7d and 30d.
var ErrUnknownRange = errors.New("range must be 7d or 30d")

// DailyUptime is the share of UP checks on one UTC calendar day.
type DailyUptime struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Uptime int    `json:"uptime"`
	Checks int    `json:"checks"`
}

// ResponseSample is one check's latency.
type ResponseSample struct {
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// Summary holds the statistics for a window of days ending now.
type Summary struct {
	Days                  int              `json:"days"`
	Uptime                []DailyUptime    `json:"uptime"`
	ResponseTimes         []ResponseSample `json:"response_times"`
	UptimePercent         float64          `json:"uptime_percent"`
	AverageResponseTimeMS float64          `json:"average_response_time_ms"`
	TotalChecks           int              `json:"total_checks"`
}

// ParseRange converts "7d" or "30d" into a day count. Empty means 7d.
func ParseRange(r string) (int, error) {
	switch r {
	case "", "7d":
		return 7, nil
	case "30d":
		return 30, nil
	}
	return 0, ErrUnknownRange
}

// Summarize computes statistics over logs from the last days days.
// Days with no checks report 0% uptime. Uptime is ordered oldest day first.
// Overall percentages and averages are rounded to two decimals.
func Summarize(logs []models.LogEntry, now time.Time, days int) Summary {
	if days < 1 {
		days = 1
	}
	now = now.UTC()
	start := now.AddDate(0, 0, -days)

	type bucket struct{ total, up int }
	buckets := make(map[string]*bucket, days)
	order := make([]string, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -(days - 1 - i)).Format(time.DateOnly)
		order[i] = date
		buckets[date] = &bucket{}
	}

	var window []models.LogEntry
	for _, l := range logs {
		if l.Timestamp.Before(start) {
			continue
		}
		window = append(window, l)
	}

	var up int
	var latencySum int64
	for _, l := range window {
		if l.Status == models.StatusUp {
			up++
		}
		latencySum += l.ResponseTimeMS
		if b, ok := buckets[l.Timestamp.UTC().Format(time.DateOnly)]; ok {
			b.total++
			if l.Status == models.StatusUp {
				b.up++
			}
		}
	}

	s := Summary{
		Days:          days,
		Uptime:        make([]DailyUptime, 0, days),
		ResponseTimes: make([]ResponseSample, 0, RecentResponseTimes),
		TotalChecks:   len(window),
	}
	for _, date := range order {
		b := buckets[date]
		d := DailyUptime{Date: date, Checks: b.total}
		if b.total > 0 {
			d.Uptime = int(math.Round(float64(b.up) / float64(b.total) * 100))
		}
		s.Uptime = append(s.Uptime, d)
	}

	recent := window
	if len(recent) > RecentResponseTimes {
		recent = recent[len(recent)-RecentResponseTimes:]
	}
	for _, l := range recent {
		s.ResponseTimes = append(s.ResponseTimes, ResponseSample{Timestamp: l.Timestamp, ResponseTimeMS: l.ResponseTimeMS})
	}

	if len(window) > 0 {
		s.UptimePercent = round2(float64(up) / float64(len(window)) * 100)
		s.AverageResponseTimeMS = round2(float64(latencySum) / float64(len(window)))
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
