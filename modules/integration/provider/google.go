package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type googleCalendar struct {
	svc        *calendar.Service
	calendarID string
}

func newGoogle(client *http.Client, baseURL string, sess Session) (Provider, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	svc, err := calendar.NewService(context.Background(), opts...)
	if err != nil {
		return nil, &Error{Provider: entity.ProviderGoogle, Kind: KindConfig, Err: err}
	}
	calID := sess.setting("calendar_id")
	if calID == "" {
		calID = "primary"
	}
	return &googleCalendar{svc: svc, calendarID: calID}, nil
}

func (g *googleCalendar) Name() string { return entity.ProviderGoogle }

func (g *googleCalendar) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	var out []Event
	call := g.svc.Events.List(g.calendarID).
		Context(ctx).
		TimeMin(w.Start.UTC().Format(time.RFC3339)).
		TimeMax(w.End.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, googleEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, googleError(err)
	}
	logger.Debug("GoogleProvider:ListEvents:Done", "calendar", g.calendarID, "count", len(out))
	return out, nil
}

func googleEvent(item *calendar.Event) Event {
	ev := Event{
		ExternalID:  item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	ev.Start, ev.AllDay = googleTime(item.Start)
	ev.End, _ = googleTime(item.End)
	if item.Creator != nil {
		ev.InstructorName = item.Creator.DisplayName
		ev.InstructorEmail = item.Creator.Email
	}
	if raw, err := json.Marshal(item); err == nil {
		ev.Raw = raw
	}
	return ev
}

// googleTime reads a start or end. A Date without DateTime is an all-day
// boundary.
func googleTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, true
		}
		return t, true
	}
	return time.Time{}, false
}

func googleError(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &Error{Provider: entity.ProviderGoogle, Kind: kindForStatus(gerr.Code), Status: gerr.Code, Err: err}
	}
	return Wrap(entity.ProviderGoogle, err)
}
