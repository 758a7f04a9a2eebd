package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
)

type calendly struct {
	client  *http.Client
	baseURL string
}

type calendlyPage struct {
	Collection []json.RawMessage `json:"collection"`
	Pagination struct {
		NextPage string `json:"next_page"`
	} `json:"pagination"`
}

type calendlyEventType struct {
	URI              string `json:"uri"`
	Name             string `json:"name"`
	DescriptionPlain string `json:"description_plain"`
}

type calendlyEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	EventType string    `json:"event_type"`
	Location  *struct {
		Type     string `json:"type"`
		Location string `json:"location"`
	} `json:"location"`
	InviteesCounter struct {
		Total  int `json:"total"`
		Active int `json:"active"`
		Limit  int `json:"limit"`
	} `json:"invitees_counter"`
	EventMemberships []struct {
		UserName  string `json:"user_name"`
		UserEmail string `json:"user_email"`
	} `json:"event_memberships"`
}

func (c *calendly) Name() string { return entity.ProviderCalendly }

func (c *calendly) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	var me struct {
		Resource struct {
			URI string `json:"uri"`
		} `json:"resource"`
	}
	if err := getJSON(ctx, c.client, c.Name(), joinURL(c.baseURL, "/users/me", nil), nil, &me); err != nil {
		return nil, err
	}
	user := me.Resource.URI

	descriptions := map[string]string{}
	err := c.paginate(ctx, joinURL(c.baseURL, "/event_types", url.Values{"user": {user}, "active": {"true"}}), func(raw json.RawMessage) {
		var et calendlyEventType
		if json.Unmarshal(raw, &et) == nil && et.URI != "" {
			descriptions[et.URI] = et.DescriptionPlain
		}
	})
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"user":           {user},
		"min_start_time": {w.Start.UTC().Format(time.RFC3339)},
		"max_start_time": {w.End.UTC().Format(time.RFC3339)},
		"status":         {"active"},
		"sort":           {"start_time:asc"},
		"count":          {"100"},
	}
	var out []Event
	err = c.paginate(ctx, joinURL(c.baseURL, "/scheduled_events", q), func(raw json.RawMessage) {
		var se calendlyEvent
		if err := json.Unmarshal(raw, &se); err != nil {
			out = append(out, Event{Raw: raw})
			return
		}
		out = append(out, calendlyToEvent(se, descriptions[se.EventType], raw))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *calendly) paginate(ctx context.Context, next string, fn func(json.RawMessage)) error {
	for next != "" {
		var page calendlyPage
		if err := getJSON(ctx, c.client, c.Name(), next, nil, &page); err != nil {
			return err
		}
		for _, raw := range page.Collection {
			fn(raw)
		}
		next = page.Pagination.NextPage
	}
	return nil
}

func calendlyToEvent(se calendlyEvent, description string, raw json.RawMessage) Event {
	ev := Event{
		ExternalID:  path.Base(se.URI),
		Title:       se.Name,
		Description: description,
		Start:       se.StartTime,
		End:         se.EndTime,
		Raw:         raw,
	}
	if se.Location != nil {
		ev.Location = se.Location.Location
	}
	if len(se.EventMemberships) > 0 {
		ev.InstructorName = se.EventMemberships[0].UserName
		ev.InstructorEmail = se.EventMemberships[0].UserEmail
	}
	if se.InviteesCounter.Limit > 0 {
		ev.MaxParticipants = intPtr(se.InviteesCounter.Limit)
	}
	ev.CurrentParticipants = intPtr(se.InviteesCounter.Active)
	return ev
}
