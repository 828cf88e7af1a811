// Package dispatch routes an admitted message without an open registration
// session to its reply: admin commands, menus, program details, registration
// start, FAQ answers and the AI fallback.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/knowledge"
	"dinsos-bot/internal/metrics"
)

const (
	RouteAdminStatus     = "admin_status"
	RouteAdminResetLimit = "admin_reset_limit"
	RouteAdminData       = "admin_data"
	RouteOutsideHours    = "outside_hours"
	RouteMenu            = "menu"
	RouteServices        = "services"
	RouteFAQList         = "faq_list"
	RouteContact         = "contact"
	RouteProgramDetail   = "program_detail"
	RouteRegister        = "registration_start"
	RouteFAQAnswer       = "faq_answer"
	RouteAIAnswer        = "ai_answer"
	RouteAIError         = "ai_error"
)

const (
	recentRegistrations = 5
	faqListSize         = 5
)

var programIndexPattern = regexp.MustCompile(`^[1-9]$`)

var registerPrefixes = []string{"daftar ", "register "}

const resetLimitPrefix = "reset limit "

// Stats reads the counters shown to admins.
type Stats interface {
	CountActivations(ctx context.Context) (int, error)
	CountRegistrations(ctx context.Context) (int, error)
	ListRecentRegistrations(ctx context.Context, limit int) ([]domain.RegistrationRecord, error)
}

// LimitResetter clears a sender's rate-limit window.
type LimitResetter interface {
	UpsertRateLimit(ctx context.Context, sender string, count int, resetAt time.Time) error
}

// Registrar opens registration sessions.
type Registrar interface {
	Start(ctx context.Context, sender, program string) (string, error)
}

// Answerer answers free-form questions.
type Answerer interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Deps are the collaborators of a Dispatcher. Answerer may be nil, in which
// case questions get the AI fallback text.
type Deps struct {
	Clock     clock.Clock
	Stats     Stats
	Limits    LimitResetter
	Registrar Registrar
	Answerer  Answerer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Dispatcher produces replies for admitted messages.
type Dispatcher struct {
	cfg       *config.Bot
	faq       *knowledge.FAQ
	deps      Deps
	startedAt time.Time
}

func New(cfg *config.Bot, deps Deps) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("dispatch: config must not be nil")
	}
	if deps.Clock == nil {
		return nil, errors.New("dispatch: clock must not be nil")
	}
	if deps.Stats == nil {
		return nil, errors.New("dispatch: stats must not be nil")
	}
	if deps.Limits == nil {
		return nil, errors.New("dispatch: limit resetter must not be nil")
	}
	if deps.Registrar == nil {
		return nil, errors.New("dispatch: registrar must not be nil")
	}
	if deps.Logger == nil {
		return nil, errors.New("dispatch: logger must not be nil")
	}
	return &Dispatcher{
		cfg:       cfg,
		faq:       knowledge.NewFAQ(cfg.FAQ),
		deps:      deps,
		startedAt: deps.Clock.Now(),
	}, nil
}

// Dispatch returns the replies for msg in sending order. Failures of
// collaborators are logged and answered with an apology; they never surface as
// errors.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message) []string {
	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)
	now := d.deps.Clock.Now()
	greeting := Greeting(now.In(d.cfg.Location()))
	isAdmin := d.cfg.IsAdmin(msg.Sender)

	if isAdmin {
		if lower == "bot status" {
			return d.reply(ctx, msg, RouteAdminStatus, d.status(ctx, now))
		}
		if strings.HasPrefix(lower, resetLimitPrefix) {
			target := strings.TrimSpace(text[len(resetLimitPrefix):])
			return d.reply(ctx, msg, RouteAdminResetLimit, d.resetLimit(ctx, target, now))
		}
	}

	if (lower == "admin" || lower == "data") && (isAdmin || d.cfg.Dispatch.DataCommandPublic) {
		return d.reply(ctx, msg, RouteAdminData, d.recentRegistrations(ctx))
	}

	if !d.cfg.IsWorkingHours(now) && !isInfoQuery(lower) {
		return d.reply(ctx, msg, RouteOutsideHours, outsideHoursText(d.cfg.Messages.OutsideHours, greeting))
	}

	switch {
	case lower == "halo" || lower == "hi" || lower == "menu" || lower == "mulai":
		return d.reply(ctx, msg, RouteMenu, mainMenuText(greeting, d.cfg.AgencyName))
	case lower == "1" || strings.Contains(lower, "info layanan"),
		lower == "2" || strings.Contains(lower, "daftar bantuan"):
		return d.reply(ctx, msg, RouteServices, servicesText(greeting, d.cfg.Programs))
	case lower == "3" || strings.Contains(lower, "faq"):
		return d.reply(ctx, msg, RouteFAQList, faqListText(greeting, d.faq.Topics(faqListSize)))
	case lower == "4" || strings.Contains(lower, "kontak"):
		return d.reply(ctx, msg, RouteContact, contactText(greeting, d.cfg.Contact, d.cfg.WorkingHours))
	case programIndexPattern.MatchString(text):
		return d.reply(ctx, msg, RouteProgramDetail, d.programDetail(text))
	}

	for _, prefix := range registerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			program := d.resolveProgram(strings.TrimSpace(text[len(prefix):]))
			return d.reply(ctx, msg, RouteRegister, d.startRegistration(ctx, msg.Sender, program))
		}
	}

	if answer, ok := d.faq.Lookup(text); ok {
		return d.reply(ctx, msg, RouteFAQAnswer, answer+d.cfg.Messages.FAQResponseSuffix)
	}
	return d.askAI(ctx, msg, text)
}

// isInfoQuery reports whether lower may be answered outside working hours.
func isInfoQuery(lower string) bool {
	return strings.Contains(lower, "jam") ||
		strings.Contains(lower, "operasional") ||
		strings.Contains(lower, "kontak") ||
		lower == "menu" ||
		lower == "4"
}

func (d *Dispatcher) reply(ctx context.Context, msg domain.Message, route string, texts ...string) []string {
	d.deps.Metrics.IncRoute(route)
	d.deps.Logger.InfoContext(ctx, "message dispatched", "route", route, "sender", msg.Sender, "replies", len(texts))
	return texts
}

func (d *Dispatcher) status(ctx context.Context, now time.Time) string {
	activated, err := d.deps.Stats.CountActivations(ctx)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "count activations failed", "err", err)
		return d.cfg.Messages.StoreError
	}
	registrations, err := d.deps.Stats.CountRegistrations(ctx)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "count registrations failed", "err", err)
		return d.cfg.Messages.StoreError
	}
	return statusText(now.Sub(d.startedAt), activated, registrations, d.cfg.IsWorkingHours(now))
}

func (d *Dispatcher) resetLimit(ctx context.Context, target string, now time.Time) string {
	if target == "" {
		return "Format: reset limit <nomor pengirim>"
	}
	if err := d.deps.Limits.UpsertRateLimit(ctx, target, 0, now); err != nil {
		d.deps.Logger.ErrorContext(ctx, "reset rate limit failed", "target", target, "err", err)
		return d.cfg.Messages.StoreError
	}
	d.deps.Logger.InfoContext(ctx, "rate limit reset", "target", target)
	return "Rate limit untuk " + target + " sudah direset."
}

func (d *Dispatcher) recentRegistrations(ctx context.Context) string {
	total, err := d.deps.Stats.CountRegistrations(ctx)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "count registrations failed", "err", err)
		return d.cfg.Messages.StoreError
	}
	recs, err := d.deps.Stats.ListRecentRegistrations(ctx, recentRegistrations)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "list registrations failed", "err", err)
		return d.cfg.Messages.StoreError
	}
	return registrationsText(recs, total, recentRegistrations, d.cfg.Location())
}

func (d *Dispatcher) programDetail(text string) string {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(d.cfg.Programs) {
		return programNotFoundText
	}
	return programDetailText(d.cfg.Programs[n-1])
}

// resolveProgram maps a typed program name to its configured spelling. Names
// that match no program are kept as typed.
func (d *Dispatcher) resolveProgram(name string) string {
	for _, p := range d.cfg.Programs {
		if strings.EqualFold(p.Name, name) {
			return p.Name
		}
	}
	return name
}

func (d *Dispatcher) startRegistration(ctx context.Context, sender, program string) string {
	reply, err := d.deps.Registrar.Start(ctx, sender, program)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "start registration failed", "sender", sender, "program", program, "err", err)
		return d.cfg.Messages.StoreError
	}
	return reply
}

func (d *Dispatcher) askAI(ctx context.Context, msg domain.Message, question string) []string {
	processing := d.cfg.Messages.Processing
	if d.deps.Answerer == nil {
		d.deps.Metrics.IncAIFailures()
		return d.reply(ctx, msg, RouteAIError, d.cfg.Messages.AIErrorFallback)
	}

	answer, err := d.deps.Answerer.Ask(ctx, question)
	switch {
	case errors.Is(err, knowledge.ErrOffTopic), errors.Is(err, knowledge.ErrFlagged):
		d.deps.Logger.InfoContext(ctx, "question declined", "sender", msg.Sender, "err", err)
		return d.reply(ctx, msg, RouteAIAnswer, processing, d.cfg.Messages.OutOfScope)
	case err != nil:
		d.deps.Metrics.IncAIFailures()
		d.deps.Logger.ErrorContext(ctx, "ai answer failed", "sender", msg.Sender, "err", err)
		return d.reply(ctx, msg, RouteAIError, processing, d.cfg.Messages.AIErrorFallback)
	}
	return d.reply(ctx, msg, RouteAIAnswer, processing, answer+d.cfg.Messages.AIResponseSuffix)
}
