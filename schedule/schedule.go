// Package schedule holds the built-in AWD growth-stage calendars and the
// week arithmetic used to locate a field within its calendar.
package schedule

import (
	"fmt"
	"time"

	"github.com/paddyops/awd/awd"
)

// PhaseSpec is one entry in an AWD calendar. Week is the zero-based calendar
// week at which the phase begins.
type PhaseSpec struct {
	Week               int       `json:"week"`
	Phase              awd.Phase `json:"phase"`
	TargetWaterLevelCm float64   `json:"target_water_level_cm"`
	DurationDays       int       `json:"duration_days"`
	Description        string    `json:"description"`
	RequiresFertilizer bool      `json:"requires_fertilizer"`
}

// Schedule is an immutable AWD calendar for one planting method. Phases are
// strictly ordered by week, week 0 always exists, and the last phase is
// harvest.
type Schedule struct {
	PlantingMethod awd.PlantingMethod `json:"planting_method"`
	TotalWeeks     int                `json:"total_weeks"`
	Phases         []PhaseSpec        `json:"phases"`
}

var transplanted = Schedule{
	PlantingMethod: awd.PlantingTransplanted,
	TotalWeeks:     14,
	Phases: []PhaseSpec{
		{Week: 0, Phase: awd.PhasePreparation, TargetWaterLevelCm: 10, DurationDays: 7, Description: "Land soaking and puddling"},
		{Week: 1, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 14, Description: "Transplanting and establishment", RequiresFertilizer: true},
		{Week: 3, Phase: awd.PhaseDrying, TargetWaterLevelCm: -10, DurationDays: 7, Description: "First AWD drying cycle"},
		{Week: 4, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 14, Description: "Tillering", RequiresFertilizer: true},
		{Week: 6, Phase: awd.PhaseDrying, TargetWaterLevelCm: -15, DurationDays: 7, Description: "Second AWD drying cycle"},
		{Week: 7, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 21, Description: "Panicle initiation and flowering", RequiresFertilizer: true},
		{Week: 10, Phase: awd.PhaseDrying, TargetWaterLevelCm: -10, DurationDays: 7, Description: "Grain filling drydown"},
		{Week: 11, Phase: awd.PhaseWetting, TargetWaterLevelCm: 3, DurationDays: 14, Description: "Grain maturation"},
		{Week: 13, Phase: awd.PhaseHarvest, TargetWaterLevelCm: -15, DurationDays: 7, Description: "Final drain and harvest"},
	},
}

var directSeeded = Schedule{
	PlantingMethod: awd.PlantingDirectSeeded,
	TotalWeeks:     15,
	Phases: []PhaseSpec{
		{Week: 0, Phase: awd.PhasePreparation, TargetWaterLevelCm: 10, DurationDays: 7, Description: "Land soaking and leveling"},
		{Week: 1, Phase: awd.PhaseDrying, TargetWaterLevelCm: -5, DurationDays: 14, Description: "Seeding and emergence (saturated soil only)"},
		{Week: 3, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 14, Description: "Early vegetative growth", RequiresFertilizer: true},
		{Week: 5, Phase: awd.PhaseDrying, TargetWaterLevelCm: -15, DurationDays: 7, Description: "First AWD drying cycle"},
		{Week: 6, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 14, Description: "Tillering", RequiresFertilizer: true},
		{Week: 8, Phase: awd.PhaseDrying, TargetWaterLevelCm: -15, DurationDays: 7, Description: "Second AWD drying cycle"},
		{Week: 9, Phase: awd.PhaseWetting, TargetWaterLevelCm: 5, DurationDays: 21, Description: "Flowering", RequiresFertilizer: true},
		{Week: 12, Phase: awd.PhaseWetting, TargetWaterLevelCm: 3, DurationDays: 14, Description: "Grain filling"},
		{Week: 14, Phase: awd.PhaseHarvest, TargetWaterLevelCm: -15, DurationDays: 7, Description: "Final drain and harvest"},
	},
}

// ForMethod returns the built-in calendar for a planting method.
func ForMethod(method awd.PlantingMethod) (Schedule, error) {
	switch method {
	case awd.PlantingTransplanted:
		return transplanted, nil
	case awd.PlantingDirectSeeded:
		return directSeeded, nil
	default:
		return Schedule{}, fmt.Errorf("unknown planting method %q", method)
	}
}

// PhaseForWeek returns the last phase whose week is <= the given week.
// Weeks past the final phase resolve to that final (harvest) phase, so the
// lookup is monotonic in week.
func (s Schedule) PhaseForWeek(week int) PhaseSpec {
	if week < 0 {
		week = 0
	}
	current := s.Phases[0]
	for _, p := range s.Phases {
		if p.Week <= week {
			current = p
		}
	}
	return current
}

// NextPhase returns the first phase strictly after the given week, or false
// when the field is already in its last phase.
func (s Schedule) NextPhase(week int) (PhaseSpec, bool) {
	for _, p := range s.Phases {
		if p.Week > week {
			return p, true
		}
	}
	return PhaseSpec{}, false
}

// NextPhaseDate computes when the next phase begins. For a field already in
// its last phase the season end (startDate + 7*TotalWeeks days) is returned.
func (s Schedule) NextPhaseDate(startDate time.Time, week int) time.Time {
	if next, ok := s.NextPhase(week); ok {
		return startDate.AddDate(0, 0, 7*next.Week)
	}
	return startDate.AddDate(0, 0, 7*s.TotalWeeks)
}

// WeekFor computes the zero-based calendar week a field is in at the given
// instant: floor(daysSince(startDate)/7), never negative.
func WeekFor(startDate, now time.Time) int {
	days := int(now.Sub(startDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 7
}
