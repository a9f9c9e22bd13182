package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/hms/hms/internal/platform/clock"
)

// Slot is one bookable hour of the daily grid, identified by its start hour.
type Slot int

const (
	firstHour = 9
	lastHour  = 19
	lunchHour = 12
)

// DailyGrid lists every slot of a working day in hour order.
var DailyGrid = buildGrid()

func buildGrid() []Slot {
	grid := make([]Slot, 0, lastHour-firstHour)
	for h := firstHour; h <= lastHour; h++ {
		if h == lunchHour {
			continue
		}
		grid = append(grid, Slot(h))
	}
	return grid
}

func (s Slot) Hour() int { return int(s) }

// Label renders the slot as "H:00" without a leading zero.
func (s Slot) Label() string { return fmt.Sprintf("%d:00", int(s)) }

func (s Slot) String() string { return s.Label() }

// InGrid reports whether s is one of the advertised slots.
func (s Slot) InGrid() bool {
	return int(s) >= firstHour && int(s) <= lastHour && int(s) != lunchHour
}

var labelPattern = regexp.MustCompile(`^(\d{1,2}):00$`)

// ParseSlot accepts "H:00" (a leading zero is tolerated) and requires the
// hour to be part of the daily grid.
func ParseSlot(label string) (Slot, error) {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("%w: %q is not an H:00 label", ErrSlotOutOfHours, label)
	}
	h, _ := strconv.Atoi(m[1])
	s := Slot(h)
	if !s.InGrid() {
		return 0, fmt.Errorf("%w: %s", ErrSlotOutOfHours, s.Label())
	}
	return s, nil
}

// AvailableSlots computes the open labels of the grid for date as seen at
// now. On the current date only hours strictly after the current hour
// remain. Booked labels are removed. The result is in hour order.
func AvailableSlots(now, date time.Time, booked []string) []string {
	taken := make(map[Slot]bool, len(booked))
	for _, label := range booked {
		if s, err := ParseSlot(label); err == nil {
			taken[s] = true
		}
	}

	today := clock.SameDate(date, now)
	open := make([]string, 0, len(DailyGrid))
	for _, s := range DailyGrid {
		if today && s.Hour() <= now.Hour() {
			continue
		}
		if taken[s] {
			continue
		}
		open = append(open, s.Label())
	}
	return open
}
