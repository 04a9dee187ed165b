package domain

import "fmt"

// Coordinates identifies a candidate store location. Rounded to four
// decimal places (~11m) when rendered as a key, which collapses geocoder
// jitter for the same site without merging adjacent candidates.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Key returns the canonical "<lat>,<lng>" form used for caching and
// deduplication.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lng)
}
