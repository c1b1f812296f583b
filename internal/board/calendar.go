package board

import (
	"sync"
	"time"
)

// WeekStart returns local midnight of the first day of the week that
// contains day.
func WeekStart(day time.Time, first time.Weekday, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := day.In(loc)
	offset := (int(local.Weekday()) - int(first) + 7) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
}

// MonthGrid returns the 6x7 matrix of dates shown for a month view: the
// first row starts on the week containing the 1st, padded with days from
// the neighbouring months.
func MonthGrid(year int, month time.Month, first time.Weekday, loc *time.Location) [][]time.Time {
	if loc == nil {
		loc = time.Local
	}
	start := WeekStart(time.Date(year, month, 1, 0, 0, 0, 0, loc), first, loc)

	grid := make([][]time.Time, 6)
	for w := range grid {
		grid[w] = make([]time.Time, 7)
		for d := range grid[w] {
			grid[w][d] = time.Date(start.Year(), start.Month(), start.Day()+w*7+d, 0, 0, 0, 0, loc)
		}
	}
	return grid
}

type monthKey struct {
	year  int
	month time.Month
	first time.Weekday
	loc   string
}

// MonthCache memoizes MonthGrid. The zero value is ready to use; callers
// own the cache, there is no package-level instance.
type MonthCache struct {
	mu    sync.Mutex
	grids map[monthKey][][]time.Time
}

// Grid returns the cached grid, computing it on first use. The returned
// matrix is shared and must not be modified.
func (c *MonthCache) Grid(year int, month time.Month, first time.Weekday, loc *time.Location) [][]time.Time {
	if loc == nil {
		loc = time.Local
	}
	k := monthKey{year: year, month: month, first: first, loc: loc.String()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.grids[k]; ok {
		return g
	}
	if c.grids == nil {
		c.grids = make(map[monthKey][][]time.Time)
	}
	g := MonthGrid(year, month, first, loc)
	c.grids[k] = g
	return g
}

// Len reports how many grids are cached.
func (c *MonthCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.grids)
}
