package scheduling

import (
	"strings"
	"time"
)

// ReservationIndex maps a date key to the set of reserved time keys for one
// doctor. It is always derived from the doctor's non-cancelled appointments.
type ReservationIndex map[string]map[string]struct{}

// NewReservationIndex builds an index from (date key, time key) pairs.
func NewReservationIndex(keys ...SlotKey) ReservationIndex {
	idx := make(ReservationIndex, len(keys))
	for _, k := range keys {
		idx.add(k.Date, k.Time)
	}
	return idx
}

// SlotKey is the reservation key of a slot within one doctor.
type SlotKey struct {
	Date string `json:"slot_date"`
	Time string `json:"slot_time"`
}

func (idx ReservationIndex) add(date, tm string) {
	times, ok := idx[date]
	if !ok {
		times = make(map[string]struct{})
		idx[date] = times
	}
	times[tm] = struct{}{}
}

func (idx ReservationIndex) remove(date, tm string) {
	times, ok := idx[date]
	if !ok {
		return
	}
	delete(times, tm)
	if len(times) == 0 {
		delete(idx, date)
	}
}

// Has reports whether (date, tm) is reserved.
func (idx ReservationIndex) Has(date, tm string) bool {
	_, ok := idx[date][tm]
	return ok
}

// Len counts reserved slots across all dates.
func (idx ReservationIndex) Len() int {
	n := 0
	for _, times := range idx {
		n += len(times)
	}
	return n
}

// Clone returns an independent copy, used to hand out snapshots.
func (idx ReservationIndex) Clone() ReservationIndex {
	out := make(ReservationIndex, len(idx))
	for date, times := range idx {
		cp := make(map[string]struct{}, len(times))
		for tm := range times {
			cp[tm] = struct{}{}
		}
		out[date] = cp
	}
	return out
}

// DayAvailability is one day of the filtered grid.
type DayAvailability struct {
	DateKey string    `json:"slot_date"`
	Date    time.Time `json:"date"`
	Weekday string    `json:"weekday"`
	Slots   []Slot    `json:"slots"`
}

// Filter removes reserved slots from the grid. Neither argument is modified.
func Filter(grid []DayGrid, reserved ReservationIndex) []DayAvailability {
	out := make([]DayAvailability, 0, len(grid))
	for _, day := range grid {
		da := DayAvailability{
			DateKey: day.DateKey(),
			Date:    day.Date,
			Weekday: strings.ToUpper(day.Date.Weekday().String()[:3]),
			Slots:   []Slot{},
		}
		day.Each(func(s Slot) bool {
			if !reserved.Has(s.DateKey, s.TimeKey) {
				da.Slots = append(da.Slots, s)
			}
			return true
		})
		out = append(out, da)
	}
	return out
}
