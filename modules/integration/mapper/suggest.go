package mapper

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/xrash/smetrics"
)

// Weights of the match score. They sum to 1.
const (
	weightTitle      = 0.5
	weightTime       = 0.3
	weightCategory   = 0.1
	weightInstructor = 0.1

	sameSlotTolerance = 30 * time.Minute
)

type Thresholds struct {
	AutoMap  float64
	MinTitle float64
	Margin   float64
}

var DefaultThresholds = Thresholds{AutoMap: 0.8, MinTitle: 0.6, Margin: 0.05}

// Subject is the normalized event being matched.
type Subject struct {
	Title           string
	Category        string
	InstructorEmail string
	Start           time.Time
	End             time.Time
}

type Slot struct {
	ScheduleID uuid.UUID
	Start      time.Time
	End        time.Time
}

// Candidate is an existing class of the same studio.
type Candidate struct {
	ClassID         uuid.UUID
	Name            string
	Category        string
	InstructorEmail string
	Slots           []Slot
}

type Suggestion struct {
	ClassID        *uuid.UUID
	ScheduleID     *uuid.UUID
	Score          float64
	Reasons        []string
	RequiresReview bool
}

type scored struct {
	cand     *Candidate
	score    float64
	title    float64
	schedule *uuid.UUID
	reasons  []string
}

// Suggest picks the best matching class for s. A class is attached only when
// the best score clears every threshold and no runner-up is within the
// margin; otherwise the suggestion asks for review and carries no class.
func Suggest(s Subject, candidates []Candidate, th Thresholds) Suggestion {
	if len(candidates) == 0 {
		return Suggestion{RequiresReview: true, Reasons: []string{"No classes to match against"}}
	}

	title := normalize(s.Title)
	all := make([]scored, 0, len(candidates))
	for i := range candidates {
		all = append(all, score(s, title, &candidates[i]))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	best := all[0]
	out := Suggestion{Score: round2(best.score), Reasons: best.reasons}

	switch {
	case best.score < th.AutoMap:
		out.RequiresReview = true
		out.Reasons = append(out.Reasons, fmt.Sprintf("Best match %q below confidence threshold", best.cand.Name))
	case best.title < th.MinTitle:
		out.RequiresReview = true
		out.Reasons = append(out.Reasons, "Title too different to map automatically")
	case len(all) > 1 && best.score-all[1].score <= th.Margin:
		out.RequiresReview = true
		out.Reasons = append(out.Reasons, fmt.Sprintf("Ambiguous: %q scores close to %q", best.cand.Name, all[1].cand.Name))
	default:
		id := best.cand.ClassID
		out.ClassID = &id
		out.ScheduleID = best.schedule
	}
	return out
}

func score(s Subject, title string, c *Candidate) scored {
	sc := scored{cand: c}

	if title != "" {
		sc.title = smetrics.JaroWinkler(title, normalize(c.Name), 0.7, 4)
	}
	sc.reasons = append(sc.reasons, fmt.Sprintf("Title similarity %.0f%% with %q", sc.title*100, c.Name))

	timeScore := 0.0
	for i := range c.Slots {
		slot := c.Slots[i]
		if overlaps(s.Start, s.End, slot.Start, slot.End) {
			timeScore = 1
			id := slot.ScheduleID
			sc.schedule = &id
			break
		}
		if timeScore == 0 && sameWeeklySlot(s.Start, slot.Start) {
			timeScore = 0.5
		}
	}
	switch timeScore {
	case 1:
		sc.reasons = append(sc.reasons, "Overlaps a scheduled session")
	case 0.5:
		sc.reasons = append(sc.reasons, "Same weekday and start time as a scheduled session")
	}

	catScore := 0.0
	if s.Category != "" && s.Category != CategoryGeneral && strings.EqualFold(s.Category, c.Category) {
		catScore = 1
		sc.reasons = append(sc.reasons, "Category match: "+s.Category)
	}

	instrScore := 0.0
	if s.InstructorEmail != "" && strings.EqualFold(s.InstructorEmail, c.InstructorEmail) {
		instrScore = 1
		sc.reasons = append(sc.reasons, "Instructor match")
	}

	sc.score = weightTitle*sc.title + weightTime*timeScore + weightCategory*catScore + weightInstructor*instrScore
	return sc
}

func normalize(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", " ")
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aStart.IsZero() || bStart.IsZero() {
		return false
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func sameWeeklySlot(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	a, b = a.UTC(), b.UTC()
	if a.Weekday() != b.Weekday() {
		return false
	}
	da := time.Duration(a.Hour())*time.Hour + time.Duration(a.Minute())*time.Minute
	db := time.Duration(b.Hour())*time.Hour + time.Duration(b.Minute())*time.Minute
	diff := da - db
	if diff < 0 {
		diff = -diff
	}
	return diff <= sameSlotTolerance
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
