package ics

import (
	"context"
	"errors"
	"time"

	appLog "staffcal/internal/log"
	"staffcal/internal/model"
)

// FeedSource serves meetings from one ICS feed per staff member. It is the
// production meeting source behind the refresher.
type FeedSource struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewFeedSource builds a FeedSource. Each Source ID must be the staff ID
// whose meetings the feed holds.
func NewFeedSource(fetcher *Fetcher, sources []Source, displayLoc *time.Location) *FeedSource {
	if displayLoc == nil {
		displayLoc = time.Local
	}
	return &FeedSource{fetcher: fetcher, sources: sources, loc: displayLoc}
}

// Search fetches every feed and returns the meetings touching [from, to].
// Feeds that fail are skipped; their errors are joined into the returned
// error next to whatever meetings were collected.
func (s *FeedSource) Search(ctx context.Context, from, to time.Time) ([]model.Meeting, error) {
	results, fetchErrs := s.fetcher.FetchAll(ctx, s.sources)
	errs := append([]error(nil), fetchErrs...)

	meetings := make([]model.Meeting, 0)
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range ToMeetings(res.Source.ID, events, s.loc) {
			if m.Touches(from, to) {
				meetings = append(meetings, m)
			}
		}
	}

	appLog.Debug("ics search done",
		"feeds", len(s.sources),
		"meetings", len(meetings),
		"errors", len(errs),
	)
	return meetings, errors.Join(errs...)
}
