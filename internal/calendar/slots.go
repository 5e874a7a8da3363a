package calendar

import (
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

// SlotStep is the spacing between candidate start times.
const SlotStep = 15 * time.Minute

// generateSlots lists every free window of the given length on day. Slots that
// start at or before now are dropped, as are slots overlapping booked.
func generateSlots(hours *clinic.DayHours, day time.Time, duration time.Duration, booked []Appointment, now time.Time) []TimeSlot {
	if hours == nil || duration <= 0 {
		return nil
	}
	open, closeAt, err := hours.Bounds(day)
	if err != nil {
		return nil
	}

	var slots []TimeSlot
	for start := open; !start.Add(duration).After(closeAt); start = start.Add(SlotStep) {
		end := start.Add(duration)
		if !start.After(now) {
			continue
		}
		if overlapsAny(booked, start, end) {
			continue
		}
		slots = append(slots, TimeSlot{Start: start.Format("15:04"), End: end.Format("15:04")})
	}
	return slots
}

func overlapsAny(booked []Appointment, start, end time.Time) bool {
	for _, a := range booked {
		if a.Status == StatusCancelled {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func withinHours(hours *clinic.DayHours, start, end time.Time) bool {
	if hours == nil {
		return false
	}
	open, closeAt, err := hours.Bounds(start)
	if err != nil {
		return false
	}
	return !start.Before(open) && !end.After(closeAt)
}

// dayBounds returns local midnight of day and of the following day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
