// Package insights finds the parts of the day a user listens most, using
// k-means clustering over play times.
package insights

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/soundify/internal/history"
)

// Config holds peak detection parameters.
type Config struct {
	NumClusters    int            // Number of clusters to create (default: 3)
	MinClusterSize int            // Clusters smaller than this are dropped
	TopArtists     int            // Artists listed per window
	Location       *time.Location // Wall clock the hours are read in (nil: local)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:    3,
		MinClusterSize: 2,
		TopArtists:     3,
	}
}

// Window is a stretch of the day with concentrated listening.
type Window struct {
	Label      string         `json:"label"`       // "Evening 21:00-23:00"
	Bucket     history.Bucket `json:"time_of_day"` // Bucket of the center hour
	CenterHour float64        `json:"center_hour"` // Circular mean, in [0, 24)
	StartHour  int            `json:"start_hour"`
	EndHour    int            `json:"end_hour"` // May be below StartHour when the window wraps midnight
	Plays      int            `json:"plays"`
	TopArtists []string       `json:"top_artists"`
}

// playObservation wraps an Entry to implement clusters.Observation. Hours
// are placed on the unit circle so 23:00 and 01:00 are neighbors.
type playObservation struct {
	entry  *history.Entry
	hour   float64
	coords clusters.Coordinates
}

func (o playObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o playObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// PeakWindows groups plays by hour of day and returns the busiest windows,
// most plays first. At most cfg.NumClusters windows are returned.
func PeakWindows(entries []history.Entry, cfg Config) ([]Window, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	def := DefaultConfig()
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = def.NumClusters
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 1
	}
	if cfg.TopArtists <= 0 {
		cfg.TopArtists = def.TopArtists
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	var obs clusters.Observations
	for i := range entries {
		e := &entries[i]
		h := hourOf(e.PlayedAt.In(loc))
		obs = append(obs, playObservation{entry: e, hour: h, coords: toCircle(h)})
	}

	k := min(cfg.NumClusters, len(obs))
	result, err := kmeans.New().Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("clustering play times: %w", err)
	}

	var windows []Window
	for _, cluster := range result {
		if len(cluster.Observations) < cfg.MinClusterSize {
			continue
		}
		windows = append(windows, buildWindow(cluster.Observations, cfg.TopArtists))
	}

	slices.SortFunc(windows, func(a, b Window) int {
		if c := cmp.Compare(b.Plays, a.Plays); c != 0 {
			return c
		}
		return cmp.Compare(a.CenterHour, b.CenterHour)
	})
	return windows, nil
}

// BucketCounts tallies plays per time-of-day bucket.
func BucketCounts(entries []history.Entry) map[history.Bucket]int {
	counts := map[history.Bucket]int{
		history.Morning:   0,
		history.Afternoon: 0,
		history.Evening:   0,
	}
	for _, e := range entries {
		if e.TimeOfDay.Valid() {
			counts[e.TimeOfDay]++
		}
	}
	return counts
}

func buildWindow(members clusters.Observations, topN int) Window {
	hours := make([]float64, 0, len(members))
	artists := make(map[string]int)
	for _, o := range members {
		po, ok := o.(playObservation)
		if !ok {
			continue
		}
		hours = append(hours, po.hour)
		if po.entry.ArtistName != "" {
			artists[po.entry.ArtistName]++
		}
	}

	center := circularMean(hours)

	// Spread is measured as signed offsets from the center so windows that
	// straddle midnight stay contiguous.
	lo, hi := 0.0, 0.0
	for _, h := range hours {
		off := offset(h, center)
		lo = min(lo, off)
		hi = max(hi, off)
	}
	start := wrapHour(int(math.Floor(center + lo)))
	end := wrapHour(int(math.Floor(center + hi)))

	bucket := history.BucketForHour(int(center))
	return Window{
		Label:      formatLabel(bucket, start, end),
		Bucket:     bucket,
		CenterHour: math.Round(center*100) / 100,
		StartHour:  start,
		EndHour:    end,
		Plays:      len(hours),
		TopArtists: topArtists(artists, topN),
	}
}

func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func toCircle(hour float64) clusters.Coordinates {
	theta := hour / 24 * 2 * math.Pi
	return clusters.Coordinates{math.Cos(theta), math.Sin(theta)}
}

// circularMean returns the mean hour in [0, 24).
func circularMean(hours []float64) float64 {
	var x, y float64
	for _, h := range hours {
		c := toCircle(h)
		x += c[0]
		y += c[1]
	}
	h := math.Atan2(y, x) / (2 * math.Pi) * 24
	return math.Mod(math.Round(h*1e6)/1e6+24, 24)
}

// offset returns h - center folded into [-12, 12).
func offset(h, center float64) float64 {
	return math.Mod(h-center+36, 24) - 12
}

func wrapHour(h int) int {
	return ((h % 24) + 24) % 24
}

func topArtists(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func formatLabel(b history.Bucket, start, end int) string {
	if start == end {
		return fmt.Sprintf("%s %02d:00", b, start)
	}
	return fmt.Sprintf("%s %02d:00-%02d:00", b, start, end)
}
