// Package scheduler runs the daily agenda digest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/calendar"
)

// AgendaSource lists the events of one calendar day.
type AgendaSource interface {
	EventsForDay(ctx context.Context, day time.Time) ([]calendar.Event, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Scheduler struct {
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	spec      string
	loc       *time.Location
	source    AgendaSource
	notifiers []Notifier
	log       *zap.Logger
	now       func() time.Time
}

func New(spec string, loc *time.Location, source AgendaSource, log *zap.Logger, notifiers ...Notifier) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		ctx:       ctx,
		cancel:    cancel,
		spec:      spec,
		loc:       loc,
		source:    source,
		notifiers: notifiers,
		log:       log,
		now:       time.Now,
	}
}

// Start registers the digest job. Without notifiers it does nothing.
func (s *Scheduler) Start() error {
	if len(s.notifiers) == 0 {
		s.log.Warn("agenda digest disabled: no notifier configured")
		return nil
	}
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunDigest(s.ctx); err != nil {
			s.log.Error("agenda digest failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule agenda digest %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("agenda digest scheduled", zap.String("cron", s.spec), zap.String("tz", s.loc.String()))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}

// RunDigest sends today's agenda to every notifier. All notifiers are tried;
// their errors are joined.
func (s *Scheduler) RunDigest(ctx context.Context) error {
	day := s.now().In(s.loc)
	events, err := s.source.EventsForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("load agenda: %w", err)
	}
	text := FormatDigest(day, events, s.loc)

	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Info("agenda digest sent", zap.Int("events", len(events)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func FormatDigest(day time.Time, events []calendar.Event, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agenda del %s\n", day.In(loc).Format("02/01/2006"))
	if len(events) == 0 {
		b.WriteString("Sin citas agendadas.")
		return b.String()
	}
	for _, e := range events {
		fmt.Fprintf(&b, "- %s %s\n", clock(e.StartTime, loc), e.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// clock renders an RFC 3339 start as HH:MM; all-day dates render as "todo el día".
func clock(start string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return "todo el día"
	}
	return t.In(loc).Format("15:04")
}
