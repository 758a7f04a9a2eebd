package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
)

const squareVersion = "2023-10-18"

type square struct {
	client     *http.Client
	baseURL    string
	locationID string
}

type squareBooking struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	StartAt             time.Time `json:"start_at"`
	LocationID          string    `json:"location_id"`
	CustomerNote        string    `json:"customer_note"`
	AppointmentSegments []struct {
		DurationMinutes    int    `json:"duration_minutes"`
		ServiceVariationID string `json:"service_variation_id"`
		TeamMemberID       string `json:"team_member_id"`
	} `json:"appointment_segments"`
}

type squareService struct {
	name       string
	priceCents *int64
}

func (s *square) Name() string { return entity.ProviderSquare }

func (s *square) headers() map[string]string {
	return map[string]string{"Square-Version": squareVersion}
}

func (s *square) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	services, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	members := s.teamMembers(ctx)

	q := url.Values{
		"start_at_min": {w.Start.UTC().Format(time.RFC3339)},
		"start_at_max": {w.End.UTC().Format(time.RFC3339)},
	}
	if s.locationID != "" {
		q.Set("location_id", s.locationID)
	}

	var out []Event
	for {
		var page struct {
			Bookings []json.RawMessage `json:"bookings"`
			Cursor   string            `json:"cursor"`
		}
		if err := getJSON(ctx, s.client, s.Name(), joinURL(s.baseURL, "/v2/bookings", q), s.headers(), &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Bookings {
			var b squareBooking
			if err := json.Unmarshal(raw, &b); err != nil {
				out = append(out, Event{Raw: raw})
				continue
			}
			if isSquareCancelled(b.Status) {
				continue
			}
			out = append(out, squareToEvent(b, services, members, raw))
		}
		if page.Cursor == "" {
			break
		}
		q.Set("cursor", page.Cursor)
	}
	return out, nil
}

func isSquareCancelled(status string) bool {
	switch status {
	case "CANCELLED_BY_CUSTOMER", "CANCELLED_BY_SELLER", "DECLINED", "NO_SHOW":
		return true
	}
	return false
}

func squareToEvent(b squareBooking, services map[string]squareService, members map[string]teamMember, raw json.RawMessage) Event {
	ev := Event{
		ExternalID:          b.ID,
		Description:         b.CustomerNote,
		Start:               b.StartAt,
		Location:            b.LocationID,
		MaxParticipants:     intPtr(1),
		CurrentParticipants: intPtr(1),
		Raw:                 raw,
	}
	minutes := 0
	for i, seg := range b.AppointmentSegments {
		minutes += seg.DurationMinutes
		if i > 0 {
			continue
		}
		if svc, ok := services[seg.ServiceVariationID]; ok {
			ev.Title = svc.name
			ev.PriceCents = svc.priceCents
		}
		if m, ok := members[seg.TeamMemberID]; ok {
			ev.InstructorName = m.name
			ev.InstructorEmail = m.email
		}
	}
	if ev.Title == "" {
		ev.Title = "Square booking"
	}
	if !b.StartAt.IsZero() {
		ev.End = b.StartAt.Add(time.Duration(minutes) * time.Minute)
	}
	return ev
}

// catalog maps item variation ids to their service name and price.
func (s *square) catalog(ctx context.Context) (map[string]squareService, error) {
	out := map[string]squareService{}
	q := url.Values{"types": {"ITEM"}}
	for {
		var page struct {
			Objects []struct {
				ItemData *struct {
					Name       string `json:"name"`
					Variations []struct {
						ID                string `json:"id"`
						ItemVariationData struct {
							PriceMoney *struct {
								Amount int64 `json:"amount"`
							} `json:"price_money"`
						} `json:"item_variation_data"`
					} `json:"variations"`
				} `json:"item_data"`
			} `json:"objects"`
			Cursor string `json:"cursor"`
		}
		if err := getJSON(ctx, s.client, s.Name(), joinURL(s.baseURL, "/v2/catalog/list", q), s.headers(), &page); err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if obj.ItemData == nil {
				continue
			}
			for _, v := range obj.ItemData.Variations {
				svc := squareService{name: obj.ItemData.Name}
				if v.ItemVariationData.PriceMoney != nil {
					svc.priceCents = int64Ptr(v.ItemVariationData.PriceMoney.Amount)
				}
				out[v.ID] = svc
			}
		}
		if page.Cursor == "" {
			return out, nil
		}
		q.Set("cursor", page.Cursor)
	}
}

type teamMember struct {
	name  string
	email string
}

// teamMembers is best effort. Sellers without the team permission still get
// their bookings, just without instructor details.
func (s *square) teamMembers(ctx context.Context) map[string]teamMember {
	out := map[string]teamMember{}
	body := map[string]any{"limit": 200}
	for {
		var page struct {
			TeamMembers []struct {
				ID           string `json:"id"`
				GivenName    string `json:"given_name"`
				FamilyName   string `json:"family_name"`
				EmailAddress string `json:"email_address"`
			} `json:"team_members"`
			Cursor string `json:"cursor"`
		}
		if err := postJSON(ctx, s.client, s.Name(), joinURL(s.baseURL, "/v2/team-members/search", nil), s.headers(), body, &page); err != nil {
			logger.Warn("SquareProvider:TeamMembers:Failed", "error", err)
			return out
		}
		for _, m := range page.TeamMembers {
			name := m.GivenName
			if m.FamilyName != "" {
				name += " " + m.FamilyName
			}
			out[m.ID] = teamMember{name: name, email: m.EmailAddress}
		}
		if page.Cursor == "" {
			return out
		}
		body["cursor"] = page.Cursor
	}
}
