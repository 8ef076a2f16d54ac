// Package calendar books and looks up appointments in one Google Calendar.
// Events are identified by title plus start time.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/envelope"
)

const (
	msgDone       = "La operación se completó exitosamente."
	msgUnexpected = "Error inesperado al procesar la operación."

	appointmentDuration = time.Hour
	matchWindow         = time.Minute
	upcomingDays        = 5
)

// Event is the flattened view of a calendar event handed back to the assistant.
type Event struct {
	AppointmentID string `json:"appointment_id"`
	Summary       string `json:"summary"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	HTMLLink      string `json:"htmlLink,omitempty"`
}

type Appointment struct {
	AppointmentID string `json:"appointment_id"`
	UserName      string `json:"user_name"`
	Service       string `json:"service"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Description   string `json:"description"`
	Summary       string `json:"summary"`
	Location      string `json:"location"`
}

type Cancellation struct {
	AppointmentID       string `json:"appointment_id"`
	UserName            string `json:"user_name"`
	AppointmentDateTime string `json:"appointment_datetime"`
	Reason              string `json:"reason"`
	Summary             string `json:"summary"`
	Status              string `json:"status"`
}

// EventUpdate holds the optional replacements for UpdateByDetails.
type EventUpdate struct {
	Title string
	Start string
	End   string
}

type Client struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	now        func() time.Time
}

// FromServiceAccount builds a client from service-account JSON.
func FromServiceAccount(ctx context.Context, credentialsJSON []byte, calendarID string, loc *time.Location) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("calendar credentials: %w", err)
	}
	return New(ctx, calendarID, loc, option.WithCredentials(creds))
}

func New(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{svc: svc, calendarID: calendarID, loc: loc, now: time.Now}, nil
}

// CreateEvent books a one-hour event starting at start.
func (c *Client) CreateEvent(ctx context.Context, title, start string) (envelope.Envelope, error) {
	from, err := c.parseTime(start)
	if err != nil {
		return envelope.Envelope{}, err
	}
	ev := &gcal.Event{
		Summary: title,
		Start:   c.eventTime(from),
		End:     c.eventTime(from.Add(appointmentDuration)),
	}
	created, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("insert event: %w", err)
	}
	return envelope.OK(msgDone, toEvent(created)), nil
}

// ListUpcoming returns events from now until the end of the fifth day ahead.
func (c *Client) ListUpcoming(ctx context.Context, max int64) ([]Event, error) {
	now := c.now().In(c.loc)
	until := now.AddDate(0, 0, upcomingDays)
	until = time.Date(until.Year(), until.Month(), until.Day(), 23, 59, 0, 0, c.loc)

	items, err := c.eventsBetween(ctx, now, until, max)
	if err != nil {
		return nil, err
	}
	return toEvents(items), nil
}

// EventsForDay lists the events starting on day's calendar date.
func (c *Client) EventsForDay(ctx context.Context, day time.Time) ([]Event, error) {
	d := day.In(c.loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
	items, err := c.eventsBetween(ctx, from, from.AddDate(0, 0, 1), 0)
	if err != nil {
		return nil, err
	}
	return toEvents(items), nil
}

// UpdateEvent moves eventID to newDate and, when userName is set, records who
// rescheduled it in the summary.
func (c *Client) UpdateEvent(ctx context.Context, eventID, userName, newDate string) envelope.Envelope {
	from, err := c.parseTime(newDate)
	if err != nil {
		return envelope.Fail(msgUnexpected, err)
	}
	ev, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return apiFailure("Ocurrió un error al procesar la operación.", err)
	}
	ev.Start = c.eventTime(from)
	ev.End = c.eventTime(from.Add(appointmentDuration))
	if userName != "" {
		summary := ev.Summary
		if summary == "" {
			summary = "Evento Actualizado"
		}
		ev.Summary = fmt.Sprintf("Reagendado por %s - %s", userName, summary)
	}
	updated, err := c.svc.Events.Update(c.calendarID, eventID, ev).Context(ctx).Do()
	if err != nil {
		return apiFailure("Ocurrió un error al procesar la operación.", err)
	}
	return envelope.OK(msgDone, toEvent(updated))
}

// UpdateByDetails finds the event titled title at start and applies upd.
// A new start without a new end keeps the event's duration.
func (c *Client) UpdateByDetails(ctx context.Context, title, start string, upd EventUpdate) envelope.Envelope {
	at, err := c.parseTime(start)
	if err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	ev, err := c.findAt(ctx, at, func(e *gcal.Event) bool { return e.Summary == title })
	if err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	if ev == nil {
		return c.notFound(title, at)
	}

	if upd.Title != "" {
		ev.Summary = upd.Title
	}
	oldStart, _ := c.eventStart(ev)
	oldEnd, hasEnd := c.edge(ev.End)
	if upd.Start != "" {
		newStart, err := c.parseTime(upd.Start)
		if err != nil {
			return envelope.WithStatus(envelope.StatusError, err.Error())
		}
		ev.Start = c.eventTime(newStart)
		if upd.End == "" && hasEnd {
			ev.End = c.eventTime(newStart.Add(oldEnd.Sub(oldStart)))
		}
	}
	if upd.End != "" {
		newEnd, err := c.parseTime(upd.End)
		if err != nil {
			return envelope.WithStatus(envelope.StatusError, err.Error())
		}
		ev.End = c.eventTime(newEnd)
	}

	updated, err := c.svc.Events.Update(c.calendarID, ev.Id, ev).Context(ctx).Do()
	if err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	out := envelope.WithStatus(envelope.StatusSuccess, "Evento actualizado con éxito.")
	out.Data = toEvent(updated)
	return out
}

// DeleteByDetails removes the event titled title at start.
func (c *Client) DeleteByDetails(ctx context.Context, title, start string) envelope.Envelope {
	at, err := c.parseTime(start)
	if err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	ev, err := c.findAt(ctx, at, func(e *gcal.Event) bool { return e.Summary == title })
	if err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	if ev == nil {
		return c.notFound(title, at)
	}
	if err := c.svc.Events.Delete(c.calendarID, ev.Id).Context(ctx).Do(); err != nil {
		return envelope.WithStatus(envelope.StatusError, err.Error())
	}
	return envelope.WithStatus(envelope.StatusSuccess, "Evento eliminado con éxito.")
}

// GetAppointments lists events whose summary contains both userName and
// service, case-insensitively.
func (c *Client) GetAppointments(ctx context.Context, userName, service string, futureOnly bool) envelope.Envelope {
	call := c.svc.Events.List(c.calendarID).SingleEvents(true).OrderBy("startTime")
	if futureOnly {
		call = call.TimeMin(c.now().Format(time.RFC3339))
	}
	var items []*gcal.Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return apiFailure("Ocurrió un error al obtener las citas desde Google Calendar.", err)
	}
	if len(items) == 0 {
		return envelope.OK("No se encontraron citas agendadas.", []Appointment{})
	}

	user, svc := strings.ToLower(userName), strings.ToLower(service)
	matched := []Appointment{}
	for _, e := range items {
		summary := strings.ToLower(e.Summary)
		if !strings.Contains(summary, user) || !strings.Contains(summary, svc) {
			continue
		}
		location := e.Location
		if location == "" {
			location = "No se proporcionó una ubicación"
		}
		matched = append(matched, Appointment{
			AppointmentID: e.Id,
			UserName:      userName,
			Service:       service,
			StartTime:     edgeString(e.Start),
			EndTime:       edgeString(e.End),
			Description:   e.Description,
			Summary:       e.Summary,
			Location:      location,
		})
	}
	if len(matched) == 0 {
		return envelope.OK("No se encontraron citas que coincidan con los filtros especificados.", matched)
	}
	return envelope.OK(msgDone, matched)
}

// CancelAppointment deletes the event at the given time whose summary
// mentions userName.
func (c *Client) CancelAppointment(ctx context.Context, userName, at, reason string) envelope.Envelope {
	when, err := c.parseTime(at)
	if err != nil {
		return envelope.Fail(msgUnexpected, err)
	}
	user := strings.ToLower(userName)
	ev, err := c.findAt(ctx, when, func(e *gcal.Event) bool {
		return strings.Contains(strings.ToLower(e.Summary), user)
	})
	if err != nil {
		return apiFailure("Ocurrió un error al cancelar la cita.", err)
	}
	if ev == nil {
		return envelope.OK("No se encontró ninguna cita que coincida con los criterios especificados.", []Appointment{})
	}
	if err := c.svc.Events.Delete(c.calendarID, ev.Id).Context(ctx).Do(); err != nil {
		return apiFailure("Ocurrió un error al cancelar la cita.", err)
	}
	if reason == "" {
		reason = "No especificada"
	}
	return envelope.OK("La operación se completó exitosamente. La cita ha sido cancelada.", Cancellation{
		AppointmentID:       ev.Id,
		UserName:            userName,
		AppointmentDateTime: at,
		Reason:              reason,
		Summary:             ev.Summary,
		Status:              "cancelled",
	})
}

// findAt returns the first event starting exactly at `at` that satisfies
// match, or nil.
func (c *Client) findAt(ctx context.Context, at time.Time, match func(*gcal.Event) bool) (*gcal.Event, error) {
	items, err := c.eventsBetween(ctx, at.Add(-matchWindow), at.Add(matchWindow), 0)
	if err != nil {
		return nil, err
	}
	for _, e := range items {
		start, ok := c.eventStart(e)
		if ok && start.Equal(at) && match(e) {
			return e, nil
		}
	}
	return nil, nil
}

func (c *Client) eventsBetween(ctx context.Context, from, to time.Time, max int64) ([]*gcal.Event, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if max > 0 {
		call = call.MaxResults(max)
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return res.Items, nil
}

func (c *Client) notFound(title string, at time.Time) envelope.Envelope {
	return envelope.WithStatus(envelope.StatusNotFound, fmt.Sprintf(
		"No se encontró un evento con el título '%s' y la hora de inicio '%s'.",
		title, at.In(c.loc).Format(time.RFC3339)))
}

var layouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTime accepts RFC 3339 or a local date-time in the calendar zone.
func (c *Client) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(c.loc), nil
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", s)
}

func (c *Client) eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.In(c.loc).Format(time.RFC3339), TimeZone: c.loc.String()}
}

func (c *Client) eventStart(e *gcal.Event) (time.Time, bool) {
	return c.edge(e.Start)
}

func (c *Client) edge(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, err == nil
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, c.loc)
		return t, err == nil
	}
	return time.Time{}, false
}

func edgeString(dt *gcal.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}

func toEvent(e *gcal.Event) Event {
	return Event{
		AppointmentID: e.Id,
		Summary:       e.Summary,
		StartTime:     edgeString(e.Start),
		EndTime:       edgeString(e.End),
		HTMLLink:      e.HtmlLink,
	}
}

func toEvents(items []*gcal.Event) []Event {
	out := make([]Event, 0, len(items))
	for _, e := range items {
		out = append(out, toEvent(e))
	}
	return out
}

// apiFailure separates Google API errors from everything else the way the
// assistant expects to read them.
func apiFailure(apiMsg string, err error) envelope.Envelope {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return envelope.Fail(apiMsg, err)
	}
	return envelope.Fail(msgUnexpected, err)
}
