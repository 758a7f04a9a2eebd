package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const (
	maxFeedBytes          = 10 << 20
	maxOccurrencesPerRule = 1000
)

// acuity imports the studio's published iCalendar feed, expanding recurring
// entries inside the sync window.
type acuity struct {
	client *http.Client
	feed   string
}

func newAcuity(client *http.Client, sess Session) (Provider, error) {
	feed := sess.setting("ics_url")
	if feed == "" {
		return nil, &Error{Provider: entity.ProviderAcuity, Kind: KindConfig, Err: errors.New("settings.ics_url is required")}
	}
	return &acuity{client: client, feed: feed}, nil
}

func (a *acuity) Name() string { return entity.ProviderAcuity }

func (a *acuity) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feed, nil)
	if err != nil {
		return nil, &Error{Provider: a.Name(), Kind: KindConfig, Err: err}
	}
	req.Header.Set("Accept", "text/calendar")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Wrap(a.Name(), err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError(a.Name(), resp)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, Wrap(a.Name(), err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: a.Name(), Kind: KindAPI, Err: fmt.Errorf("parse feed: %w", err)}
	}

	var out []Event
	for _, ve := range cal.Events() {
		out = append(out, expandVEvent(ve, w)...)
	}
	return out, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func expandVEvent(ve *ical.VEvent, w Window) []Event {
	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	base := Event{
		ExternalID:  uid,
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Raw:         icalRaw(ve),
	}
	if org := ve.GetProperty(ical.ComponentPropertyOrganizer); org != nil {
		base.InstructorEmail = strings.TrimPrefix(strings.ToLower(org.Value), "mailto:")
		if cn, ok := org.ICalParameters["CN"]; ok && len(cn) > 0 {
			base.InstructorName = cn[0]
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		// undated entries still surface so the import can count them
		return []Event{base}
	}
	end, err := ve.GetEndAt()
	if err != nil || end.Before(start) {
		end = start
	}
	if dt := ve.GetProperty(ical.ComponentPropertyDtStart); dt != nil {
		if vs := dt.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			base.AllDay = true
		} else if !strings.Contains(dt.Value, "T") {
			base.AllDay = true
		}
	}

	rule := propValue(ve, ical.ComponentPropertyRrule)
	if rule == "" {
		if end.Before(w.Start) || start.After(w.End) {
			return nil
		}
		base.Start, base.End = start, end
		return []Event{base}
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		logger.Warn("AcuityProvider:Expand:BadRule", "uid", uid, "rrule", rule, "error", err)
		base.Start, base.End = start, end
		return []Event{base}
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), start.Location()); err == nil {
				set.ExDate(t)
			}
		}
	}

	occurrences := set.Between(w.Start.In(start.Location()), w.End.In(start.Location()), true)
	if len(occurrences) > maxOccurrencesPerRule {
		logger.Warn("AcuityProvider:Expand:Truncated", "uid", uid, "count", len(occurrences))
		occurrences = occurrences[:maxOccurrencesPerRule]
	}
	dur := end.Sub(start)
	out := make([]Event, 0, len(occurrences))
	for _, at := range occurrences {
		ev := base
		ev.ExternalID = uid + "@" + at.UTC().Format(time.RFC3339)
		ev.Start, ev.End = at, at.Add(dur)
		out = append(out, ev)
	}
	return out
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// icalRaw keeps the VEVENT properties as a flat JSON object for raw_data.
func icalRaw(ve *ical.VEvent) json.RawMessage {
	props := make(map[string]string, len(ve.Properties))
	for _, p := range ve.Properties {
		if _, dup := props[p.IANAToken]; dup {
			props[p.IANAToken] += "," + p.Value
			continue
		}
		props[p.IANAToken] = p.Value
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil
	}
	return b
}
