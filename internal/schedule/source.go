// Package schedule keeps an in-memory snapshot of meetings fresh by
// periodically querying a meeting source.
package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"staffcal/internal/model"
)

// Source is the record-search collaborator: it returns every meeting
// touching [from, to]. A source may return meetings together with a
// non-nil error when only some of its backends failed.
type Source interface {
	Search(ctx context.Context, from, to time.Time) ([]model.Meeting, error)
}

// FileSource serves meetings from a JSON or YAML file holding either a list
// of meetings or an object with a "meetings" list. The file is re-read on
// every search.
type FileSource struct {
	Path string
}

type meetingFile struct {
	Meetings []model.Meeting `json:"meetings" yaml:"meetings"`
}

// Search implements Source.
func (s FileSource) Search(_ context.Context, from, to time.Time) ([]model.Meeting, error) {
	all, err := ReadMeetings(s.Path)
	if err != nil {
		return nil, err
	}
	out := make([]model.Meeting, 0, len(all))
	for _, m := range all {
		if m.Touches(from, to) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ReadMeetings loads a meeting file; the format follows the extension
// (.yaml/.yml, everything else JSON).
func ReadMeetings(path string) ([]model.Meeting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []model.Meeting
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var wrapped meetingFile
		if err := yaml.Unmarshal(data, &list); err != nil {
			if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("schedule: parse %s: %w", path, err)
			}
			list = wrapped.Meetings
		}
	default:
		var wrapped meetingFile
		if err := sonic.Unmarshal(data, &list); err != nil {
			if err2 := sonic.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("schedule: parse %s: %w", path, err)
			}
			list = wrapped.Meetings
		}
	}
	return list, nil
}
