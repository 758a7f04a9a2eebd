package provider

import (
	"context"
	"encoding/json"
	"time"
)

type Window struct {
	Start time.Time
	End   time.Time
}

// Event is one provider event in the shape every adapter produces. Fields a
// provider does not carry stay zero; a zero Start or End marks an event the
// adapter could not date.
type Event struct {
	ExternalID          string
	Title               string
	Description         string
	Start               time.Time
	End                 time.Time
	AllDay              bool
	InstructorName      string
	InstructorEmail     string
	Location            string
	Room                string
	MaxParticipants     *int
	CurrentParticipants *int
	PriceCents          *int64
	Raw                 json.RawMessage
}

// Provider lists the events of one connected calendar. Implementations page
// through the whole window and return events in provider order.
type Provider interface {
	Name() string
	ListEvents(ctx context.Context, w Window) ([]Event, error)
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
