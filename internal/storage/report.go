// Package storage breaks an application's disk footprint down by category,
// e.g. data, cache and logs, against the volume that holds them.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/IYouKnow/atlas-probe/internal/volume"
)

// Category is a named directory whose size is reported.
type Category struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// ParseCategory reads "title=path".
func ParseCategory(s string) (Category, error) {
	title, path, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(title) == "" || path == "" {
		return Category{}, fmt.Errorf("category %q: want title=path", s)
	}
	return Category{Title: strings.TrimSpace(title), Path: path}, nil
}

// Detail is one category's share.
type Detail struct {
	Category
	Bytes     uint64 `json:"bytes"`
	Formatted string `json:"formatted"`
}

// Report is the footprint of all categories together.
type Report struct {
	Details     []Detail `json:"details"`
	Used        uint64   `json:"used"`
	Formatted   string   `json:"formatted"`
	Total       uint64   `json:"total"`
	Available   uint64   `json:"available"`
	UsedPercent float64  `json:"used_percent"`
}

// FolderSizer measures a directory tree. *usage.Aggregator satisfies it.
type FolderSizer interface {
	FolderSize(ctx context.Context, path string) (uint64, error)
}

// Reporter builds reports.
type Reporter struct {
	sizer FolderSizer
	// capacity looks up the filesystem holding a path.
	capacity func(path string) (volume.Usage, error)
}

// NewReporter returns a Reporter measuring with sizer and volume.PathUsage.
func NewReporter(sizer FolderSizer) *Reporter {
	return &Reporter{sizer: sizer, capacity: volume.PathUsage}
}

// Build measures every category. Any category failure fails the report.
// Capacity comes from the filesystem holding the first category; when that
// cannot be read, Total stays zero and UsedPercent is left at zero.
func (r *Reporter) Build(ctx context.Context, categories []Category) (Report, error) {
	var rep Report
	for _, c := range categories {
		n, err := r.sizer.FolderSize(ctx, c.Path)
		if err != nil {
			return Report{}, fmt.Errorf("%s: %w", c.Title, err)
		}
		rep.Details = append(rep.Details, Detail{Category: c, Bytes: n, Formatted: FormatBytes(n)})
		rep.Used += n
	}
	rep.Formatted = FormatBytes(rep.Used)

	if len(categories) > 0 {
		if u, err := r.capacity(categories[0].Path); err == nil {
			rep.Total = u.Total
			rep.Available = u.Available
			if u.Total > 0 {
				rep.UsedPercent = float64(rep.Used) / float64(u.Total) * 100
			}
		}
	}
	return rep, nil
}

// FormatBytes renders n with binary units, e.g. "1.5 KiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}
