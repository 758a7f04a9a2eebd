package mapper

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		title, desc  string
		category     string
		skill        string
		participants int
		priceCents   int64
	}{
		{"Intro to Pottery", "6 students max", "pottery", SkillBeginner, 6, 0},
		{"Advanced Acrylic Painting", "Materials included. $45.50 per person", "painting", SkillAdvanced, 0, 4550},
		{"Sunrise Yoga (all levels)", "up to 12 people", "fitness", SkillAllLevels, 12, 0},
		{"Start your morning right", "", CategoryGeneral, SkillBeginner, 0, 0},
		{"Knife Skills: Intermediate Cooking", "$80", "cooking", SkillIntermediate, 0, 8000},
		{"Private consultation", "", "consultation", SkillBeginner, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			d := Extract(tt.title, tt.desc)
			if d.Category != tt.category {
				t.Errorf("category = %q, want %q", d.Category, tt.category)
			}
			if d.SkillLevel != tt.skill {
				t.Errorf("skill = %q, want %q", d.SkillLevel, tt.skill)
			}
			switch {
			case tt.participants == 0 && d.MaxParticipants != nil:
				t.Errorf("participants = %d, want none", *d.MaxParticipants)
			case tt.participants != 0 && (d.MaxParticipants == nil || *d.MaxParticipants != tt.participants):
				t.Errorf("participants = %v, want %d", d.MaxParticipants, tt.participants)
			}
			switch {
			case tt.priceCents == 0 && d.PriceCents != nil:
				t.Errorf("price = %d, want none", *d.PriceCents)
			case tt.priceCents != 0 && (d.PriceCents == nil || *d.PriceCents != tt.priceCents):
				t.Errorf("price = %v, want %d", d.PriceCents, tt.priceCents)
			}
		})
	}
}

var monday = time.Date(2025, 3, 3, 18, 0, 0, 0, time.UTC)

func wheelClass() Candidate {
	return Candidate{
		ClassID:         uuid.New(),
		Name:            "Wheel Throwing Basics",
		Category:        "pottery",
		InstructorEmail: "mira@example.com",
		Slots:           []Slot{{ScheduleID: uuid.New(), Start: monday, End: monday.Add(2 * time.Hour)}},
	}
}

func TestSuggestMapsConfidentMatch(t *testing.T) {
	wheel := wheelClass()
	glaze := Candidate{ClassID: uuid.New(), Name: "Glaze Chemistry", Category: "pottery"}

	s := Suggest(Subject{
		Title:           "Wheel Throwing Basics!",
		Category:        "pottery",
		InstructorEmail: "Mira@Example.com",
		Start:           monday,
		End:             monday.Add(2 * time.Hour),
	}, []Candidate{glaze, wheel}, DefaultThresholds)

	if s.RequiresReview {
		t.Fatalf("expected automatic mapping, got review: %v", s.Reasons)
	}
	if s.ClassID == nil || *s.ClassID != wheel.ClassID {
		t.Errorf("class = %v, want %s", s.ClassID, wheel.ClassID)
	}
	if s.ScheduleID == nil || *s.ScheduleID != wheel.Slots[0].ScheduleID {
		t.Errorf("schedule = %v, want %s", s.ScheduleID, wheel.Slots[0].ScheduleID)
	}
	if s.Score < 0.99 {
		t.Errorf("score = %v, want ~1", s.Score)
	}
}

func TestSuggestNoCandidates(t *testing.T) {
	s := Suggest(Subject{Title: "Anything"}, nil, DefaultThresholds)
	if !s.RequiresReview || s.ClassID != nil {
		t.Errorf("suggestion = %+v, want review without class", s)
	}
}

func TestSuggestLowScoreNeedsReview(t *testing.T) {
	s := Suggest(Subject{Title: "Candle Making Night", Start: monday.Add(48 * time.Hour)}, []Candidate{wheelClass()}, DefaultThresholds)
	if !s.RequiresReview || s.ClassID != nil {
		t.Errorf("suggestion = %+v, want review without class", s)
	}
}

func TestSuggestAmbiguousNeedsReview(t *testing.T) {
	a, b := wheelClass(), wheelClass()
	s := Suggest(Subject{
		Title: "Wheel Throwing Basics", Category: "pottery", InstructorEmail: "mira@example.com",
		Start: monday, End: monday.Add(time.Hour),
	}, []Candidate{a, b}, DefaultThresholds)

	if !s.RequiresReview || s.ClassID != nil {
		t.Fatalf("suggestion = %+v, want ambiguous review", s)
	}
	last := s.Reasons[len(s.Reasons)-1]
	if !strings.HasPrefix(last, "Ambiguous") {
		t.Errorf("last reason = %q", last)
	}
}

func TestSuggestTitleFloor(t *testing.T) {
	c := wheelClass()
	c.Name = "Open Studio"
	s := Suggest(Subject{
		Title: "Wheel Throwing", Category: "pottery", InstructorEmail: "mira@example.com",
		Start: monday, End: monday.Add(time.Hour),
	}, []Candidate{c}, Thresholds{AutoMap: 0.5, MinTitle: 0.9, Margin: 0.05})

	if !s.RequiresReview || s.ClassID != nil {
		t.Errorf("suggestion = %+v, want review because of the title floor", s)
	}
}

func TestSameWeeklySlotScoresHalf(t *testing.T) {
	c := wheelClass()
	nextWeek := monday.Add(7*24*time.Hour + 20*time.Minute)
	sc := score(Subject{Title: "x", Start: nextWeek, End: nextWeek.Add(time.Hour)}, "x", &c)
	if sc.schedule != nil {
		t.Error("weekly slot should not attach a schedule")
	}
	found := false
	for _, r := range sc.reasons {
		if strings.HasPrefix(r, "Same weekday") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v", sc.reasons)
	}
}
