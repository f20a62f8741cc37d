package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SlotLength is the granularity of the booking grid.
	SlotLength = 30 * time.Minute
	// DefaultWindowDays is how many calendar days the grid covers, today included.
	DefaultWindowDays = 10
	// DefaultOpeningHour and DefaultClosingHour bound a doctor's day.
	DefaultOpeningHour = 10
	DefaultClosingHour = 21

	// timeKeyLayout renders "10:30 AM", matching what booking clients store.
	timeKeyLayout = "03:04 PM"
)

// WorkingHours is a doctor's daily bookable window in doctor-local time.
// Slots start at or after Open and strictly before Close.
type WorkingHours struct {
	Open     int
	Close    int
	Location *time.Location
}

// DefaultWorkingHours returns the 10:00-21:00 policy in loc.
func DefaultWorkingHours(loc *time.Location) WorkingHours {
	return WorkingHours{Open: DefaultOpeningHour, Close: DefaultClosingHour, Location: loc}
}

func (w WorkingHours) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Validate rejects hours outside a single calendar day.
func (w WorkingHours) Validate() error {
	if w.Open < 0 || w.Close > 24 || w.Open >= w.Close {
		return fmt.Errorf("invalid working hours %02d:00-%02d:00", w.Open, w.Close)
	}
	return nil
}

func (w WorkingHours) at(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, w.location())
}

// Slot is one bookable 30-minute unit.
type Slot struct {
	DateKey string    `json:"slot_date"`
	TimeKey string    `json:"slot_time"`
	Start   time.Time `json:"start"`
}

// DateKey formats the doctor-local calendar date of t as day_month_year with
// a zero-based month, e.g. 7 March 2025 -> "7_2_2025".
func DateKey(t time.Time) string {
	return fmt.Sprintf("%d_%d_%d", t.Day(), int(t.Month())-1, t.Year())
}

// TimeKey formats the doctor-local time of day of t, e.g. "02:30 PM".
func TimeKey(t time.Time) string {
	return t.Format(timeKeyLayout)
}

// ParseDateKey is the inverse of DateKey.
func ParseDateKey(key string) (year int, month time.Month, day int, err error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("date key %q: want day_month_year", key)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("date key %q: %w", key, convErr)
		}
		nums[i] = n
	}
	day, month, year = nums[0], time.Month(nums[1]+1), nums[2]
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("date key %q: out of range", key)
	}
	return year, month, day, nil
}

// FirstCandidate returns the first bookable instant of the day containing
// now: now+30m rounded up to the next :00 or :30, clamped to the opening
// hour. ok is false when nothing is bookable today.
func FirstCandidate(now time.Time, hours WorkingHours) (start time.Time, ok bool) {
	loc := hours.location()
	now = now.In(loc).Truncate(time.Minute)
	today := now

	t := now.Add(SlotLength)
	switch m := t.Minute(); {
	case m > 30:
		t = t.Add(time.Duration(60-m) * time.Minute)
	case m > 0:
		t = t.Add(time.Duration(30-m) * time.Minute)
	}

	if open := hours.at(today, hours.Open); t.Before(open) {
		t = open
	}
	if DateKey(t) != DateKey(today) || !t.Before(hours.at(today, hours.Close)) {
		return time.Time{}, false
	}
	return t, true
}

// DayGrid is the candidate slots of one calendar day. It is a lazy sequence:
// slots are computed on each iteration and the grid can be walked any
// number of times.
type DayGrid struct {
	Date  time.Time
	first time.Time
	end   time.Time
	empty bool
}

// DateKey returns the reservation key of the day.
func (d DayGrid) DateKey() string { return DateKey(d.Date) }

// Each calls fn for every slot in order until fn returns false.
func (d DayGrid) Each(fn func(Slot) bool) {
	if d.empty {
		return
	}
	for t := d.first; t.Before(d.end); t = t.Add(SlotLength) {
		if !fn(Slot{DateKey: DateKey(t), TimeKey: TimeKey(t), Start: t}) {
			return
		}
	}
}

// Slots materializes the day's sequence.
func (d DayGrid) Slots() []Slot {
	var out []Slot
	d.Each(func(s Slot) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Len reports how many slots the day yields.
func (d DayGrid) Len() int {
	n := 0
	d.Each(func(Slot) bool { n++; return true })
	return n
}

// GenerateGrid builds the candidate grid for days [0, days) starting with the
// calendar day of now in the doctor's zone.
func GenerateGrid(now time.Time, hours WorkingHours, days int) []DayGrid {
	if days <= 0 {
		days = DefaultWindowDays
	}
	loc := hours.location()
	now = now.In(loc)

	grid := make([]DayGrid, 0, days)
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, i)
		g := DayGrid{
			Date: hours.at(day, 0),
			end:  hours.at(day, hours.Close),
		}
		if i == 0 {
			first, ok := FirstCandidate(now, hours)
			g.first, g.empty = first, !ok
		} else {
			g.first = hours.at(day, hours.Open)
		}
		grid = append(grid, g)
	}
	return grid
}

// Contains reports whether the grid offers the slot (dateKey, timeKey).
func Contains(grid []DayGrid, dateKey, timeKey string) (Slot, bool) {
	for _, day := range grid {
		if day.DateKey() != dateKey {
			continue
		}
		var found Slot
		var ok bool
		day.Each(func(s Slot) bool {
			if s.TimeKey == timeKey {
				found, ok = s, true
				return false
			}
			return true
		})
		return found, ok
	}
	return Slot{}, false
}
