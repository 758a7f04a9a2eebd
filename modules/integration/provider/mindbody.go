package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
)

const mindbodyPageSize = 200

// mindbody reads the public class schedule. It authenticates with the
// platform API key plus the studio's site id; a staff token is optional.
type mindbody struct {
	client  *http.Client
	baseURL string
	apiKey  string
	siteID  string
	token   string
	loc     *time.Location
}

func newMindbody(client *http.Client, cfg config.MindbodyConfig, sess Session) (Provider, error) {
	m := &mindbody{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		siteID:  sess.setting("site_id"),
		token:   sess.Credentials.AccessToken,
		loc:     time.UTC,
	}
	if m.siteID == "" {
		return nil, &Error{Provider: entity.ProviderMindbody, Kind: KindConfig, Err: errors.New("settings.site_id is required")}
	}
	if tz := sess.setting("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &Error{Provider: entity.ProviderMindbody, Kind: KindConfig, Err: err}
		}
		m.loc = loc
	}
	return m, nil
}

type mindbodyClass struct {
	ID            int    `json:"Id"`
	StartDateTime string `json:"StartDateTime"`
	EndDateTime   string `json:"EndDateTime"`
	MaxCapacity   *int   `json:"MaxCapacity"`
	TotalBooked   *int   `json:"TotalBooked"`
	IsCanceled    bool   `json:"IsCanceled"`
	Staff         *struct {
		Name  string `json:"Name"`
		Email string `json:"Email"`
	} `json:"Staff"`
	Location *struct {
		Name string `json:"Name"`
	} `json:"Location"`
	Resource *struct {
		Name string `json:"Name"`
	} `json:"Resource"`
	ClassDescription struct {
		Name        string `json:"Name"`
		Description string `json:"Description"`
	} `json:"ClassDescription"`
}

func (m *mindbody) Name() string { return entity.ProviderMindbody }

func (m *mindbody) headers() map[string]string {
	h := map[string]string{"Api-Key": m.apiKey, "SiteId": m.siteID}
	if m.token != "" {
		h["Authorization"] = m.token
	}
	return h
}

func (m *mindbody) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	const layout = "2006-01-02T15:04:05"
	var out []Event
	for offset := 0; ; offset += mindbodyPageSize {
		q := url.Values{
			"StartDateTime": {w.Start.In(m.loc).Format(layout)},
			"EndDateTime":   {w.End.In(m.loc).Format(layout)},
			"Limit":         {strconv.Itoa(mindbodyPageSize)},
			"Offset":        {strconv.Itoa(offset)},
		}
		var page struct {
			PaginationResponse struct {
				TotalResults int `json:"TotalResults"`
			} `json:"PaginationResponse"`
			Classes []json.RawMessage `json:"Classes"`
		}
		if err := getJSON(ctx, m.client, m.Name(), joinURL(m.baseURL, "/class/classes", q), m.headers(), &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Classes {
			var c mindbodyClass
			if err := json.Unmarshal(raw, &c); err != nil {
				out = append(out, Event{Raw: raw})
				continue
			}
			if c.IsCanceled {
				continue
			}
			out = append(out, m.toEvent(c, raw))
		}
		if len(page.Classes) < mindbodyPageSize || offset+len(page.Classes) >= page.PaginationResponse.TotalResults {
			return out, nil
		}
	}
}

func (m *mindbody) toEvent(c mindbodyClass, raw json.RawMessage) Event {
	ev := Event{
		ExternalID:          strconv.Itoa(c.ID),
		Title:               c.ClassDescription.Name,
		Description:         c.ClassDescription.Description,
		Start:               m.parse(c.StartDateTime),
		End:                 m.parse(c.EndDateTime),
		MaxParticipants:     c.MaxCapacity,
		CurrentParticipants: c.TotalBooked,
		Raw:                 raw,
	}
	if c.Staff != nil {
		ev.InstructorName = c.Staff.Name
		ev.InstructorEmail = c.Staff.Email
	}
	if c.Location != nil {
		ev.Location = c.Location.Name
	}
	if c.Resource != nil {
		ev.Room = c.Resource.Name
	}
	return ev
}

// parse reads Mindbody's zone-less local times in the site timezone.
func (m *mindbody) parse(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", v, m.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
