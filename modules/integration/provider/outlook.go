package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
)

type outlook struct {
	client  *http.Client
	baseURL string
}

type graphEvent struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	BodyPreview string        `json:"bodyPreview"`
	IsAllDay    bool          `json:"isAllDay"`
	IsCancelled bool          `json:"isCancelled"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"organizer"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// graphLayouts covers the fractional seconds Graph appends to UTC times.
var graphLayouts = []string{"2006-01-02T15:04:05.0000000", "2006-01-02T15:04:05", time.RFC3339Nano}

func (d graphDateTime) time() time.Time {
	loc := time.UTC
	if d.TimeZone != "" && !strings.EqualFold(d.TimeZone, "UTC") {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	for _, layout := range graphLayouts {
		if t, err := time.ParseInLocation(layout, d.DateTime, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (o *outlook) Name() string { return entity.ProviderOutlook }

func (o *outlook) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	next := joinURL(o.baseURL, "/me/calendarView", url.Values{
		"startDateTime": {w.Start.UTC().Format(time.RFC3339)},
		"endDateTime":   {w.End.UTC().Format(time.RFC3339)},
		"$top":          {"100"},
		"$orderby":      {"start/dateTime"},
	})
	headers := map[string]string{"Prefer": `outlook.timezone="UTC"`}

	var out []Event
	for next != "" {
		var page struct {
			Value    []json.RawMessage `json:"value"`
			NextLink string            `json:"@odata.nextLink"`
		}
		if err := getJSON(ctx, o.client, o.Name(), next, headers, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Value {
			var ge graphEvent
			if err := json.Unmarshal(raw, &ge); err != nil {
				out = append(out, Event{Raw: raw})
				continue
			}
			if ge.IsCancelled {
				continue
			}
			out = append(out, Event{
				ExternalID:      ge.ID,
				Title:           ge.Subject,
				Description:     ge.BodyPreview,
				Start:           ge.Start.time(),
				End:             ge.End.time(),
				AllDay:          ge.IsAllDay,
				Location:        ge.Location.DisplayName,
				InstructorName:  ge.Organizer.EmailAddress.Name,
				InstructorEmail: ge.Organizer.EmailAddress.Address,
				Raw:             raw,
			})
		}
		next = page.NextLink
	}
	return out, nil
}
