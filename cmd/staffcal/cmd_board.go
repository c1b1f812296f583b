package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"staffcal/internal/board"
	"staffcal/internal/config"
	appLog "staffcal/internal/log"
	"staffcal/internal/schedule"
)

var (
	boardDate     string
	boardDays     int
	boardWeek     bool
	boardMeetings string

	boardCmd = &cobra.Command{
		Use:   "board",
		Short: "Print the day boards for a date range",
		Long: `Build the staff day boards once and print them as JSON.

Meetings come from the configured ICS feeds, or from a JSON/YAML file
given with --meetings.

Examples:
  staffcal board --date 2025-10-29
  staffcal board --week --meetings meetings.yaml`,
		RunE: runBoard,
	}
)

func init() {
	boardCmd.Flags().StringVar(&boardDate, "date", "", "First day, YYYY-MM-DD (default today)")
	boardCmd.Flags().IntVar(&boardDays, "days", 1, "Number of consecutive days")
	boardCmd.Flags().BoolVar(&boardWeek, "week", false, "Show the whole week containing --date")
	boardCmd.Flags().StringVar(&boardMeetings, "meetings", "", "Read meetings from this file instead of ICS feeds")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	loc := conf.Location()

	day := time.Now().In(loc)
	if boardDate != "" {
		day, err = time.ParseInLocation(time.DateOnly, boardDate, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", boardDate, err)
		}
	}
	days := boardDays
	if boardWeek {
		day = board.WeekStart(day, conf.FirstWeekday(), loc)
		days = 7
	}
	if days < 1 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	boards, err := buildBoards(cmd, conf, day, days)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), boards)
}

func buildBoards(cmd *cobra.Command, conf *config.Config, day time.Time, days int) ([]board.DayBoard, error) {
	loc := conf.Location()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, days)

	var src schedule.Source = feedSource(conf)
	if boardMeetings != "" {
		src = schedule.FileSource{Path: boardMeetings}
	}

	meetings, err := src.Search(cmd.Context(), from, to)
	if err != nil && len(meetings) == 0 {
		return nil, fmt.Errorf("search meetings: %w", err)
	}
	if err != nil {
		appLog.Warn("some meeting sources failed", "err", err.Error())
	}

	opts := board.Options{
		Location:   loc,
		RowHeight:  conf.Board.RowHeight,
		Gutter:     conf.Board.Gutter,
		ShowAllDay: conf.ShowAllDay,
	}
	team := board.Team(conf.StaffMembers(), meetings)
	return board.Range(from, days, team, meetings, opts), nil
}
