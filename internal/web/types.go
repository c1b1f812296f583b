package web

import (
	"time"

	"staffcal/internal/board"
	"staffcal/internal/lanes"
	"staffcal/internal/model"
)

type layoutRequest struct {
	Intervals []lanes.RawInterval `json:"intervals"`
	// Gutter overrides the configured lane gutter in pixels.
	Gutter *int `json:"gutter,omitempty"`
}

type layoutPlacement struct {
	ID       string  `json:"id"`
	LeftPct  float64 `json:"left_pct"`
	WidthPct float64 `json:"width_pct"`
	Left     string  `json:"left"`
	Width    string  `json:"width"`
}

type layoutResponse struct {
	Assignments []lanes.Assignment `json:"assignments"`
	Placements  []layoutPlacement  `json:"placements"`
}

type staffResponse struct {
	Staff []model.Staff `json:"staff"`
}

type boardResponse struct {
	Days            []board.DayBoard `json:"days"`
	SnapshotVersion uint64           `json:"snapshot_version"`
	UpdatedAt       time.Time        `json:"updated_at"`
	DisplayTimeZone string           `json:"display_timezone"`
	WeekStart       string           `json:"week_start"`
}

type monthResponse struct {
	Year      int        `json:"year"`
	Month     int        `json:"month"`
	WeekStart string     `json:"week_start"`
	Weeks     [][]string `json:"weeks"`
}

type refreshResponse struct {
	SnapshotVersion uint64    `json:"snapshot_version"`
	Meetings        int       `json:"meetings"`
	UpdatedAt       time.Time `json:"updated_at"`
	Error           string    `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
