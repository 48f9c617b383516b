package notify

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/store"
)

// Dispatcher превращает событие-исход в доставленные уведомления:
// резолвит адресатов по ролям, рендерит один шаблон и пытается доставить
// по каждому каналу независимо. Ошибок наружу не отдает никогда —
// сбой доставки виден только в логах и аудите.
type Dispatcher struct {
	dir     Directory
	email   EmailSender
	webhook WebhookSender
	trail   audit.Logger
	metrics *Metrics
	logger  *zap.Logger
	machine string

	// attemptTimeout ограничивает каждую попытку доставки отдельно
	attemptTimeout time.Duration
}

func NewDispatcher(
	dir Directory,
	email EmailSender,
	webhook WebhookSender,
	trail audit.Logger,
	metrics *Metrics,
	logger *zap.Logger,
	attemptTimeout time.Duration,
) *Dispatcher {
	if attemptTimeout <= 0 {
		attemptTimeout = 15 * time.Second
	}
	machine, _ := os.Hostname()
	return &Dispatcher{
		dir:            dir,
		email:          email,
		webhook:        webhook,
		trail:          trail,
		metrics:        metrics,
		logger:         logger.Named("dispatcher"),
		machine:        machine,
		attemptTimeout: attemptTimeout,
	}
}

// Dispatch — точка входа уведомлений. Fire-and-forget: метод не возвращает
// ничего и не имеет права уронить вызывающего.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.NotificationEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic recovered", zap.Any("panic", r))
		}
	}()

	d.metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	actx := d.auditContext(ev)

	// 1. Адресаты: роли события + контролеры контрагентов для IC-расхождений
	recipients := d.resolveRecipients(ctx, ev)

	// 2. Один рендер на событие
	subject, html, err := renderHTML(ev)
	if err != nil {
		d.logger.Error("notification render failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		e := audit.NewEntry(audit.CategoryNotify, actx)
		e.Status = audit.StatusError
		e.Add("kind", string(ev.Kind))
		e.Add("error", err.Error())
		d.trail.Log(e)
		return
	}

	// 3. Доставка: каждая попытка независима, конкурентна и ограничена
	// своим таймаутом. Провал одной не трогает остальные.
	var wg sync.WaitGroup
	var channels []string

	if len(recipients) > 0 {
		channels = append(channels, "email")
		for _, rcpt := range recipients {
			wg.Add(1)
			go func(rcpt string) {
				defer wg.Done()
				tCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
				defer cancel()

				err := d.email.Send(tCtx, Email{To: []string{rcpt}, Subject: subject, HTML: html})
				d.afterAttempt(actx, ev, "email", rcpt, err)
			}(rcpt)
		}
	}

	if url := d.webhookURL(ctx, ev.POV.Entity); url != "" {
		channels = append(channels, "webhook")
		wg.Add(1)
		go func() {
			defer wg.Done()
			tCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
			defer cancel()

			err := d.webhook.Post(tCtx, url, card(ev))
			d.afterAttempt(actx, ev, "webhook", url, err)
		}()
	}
	wg.Wait()

	// 4. Итог по событию
	summary := audit.NewEntry(audit.CategoryNotify, actx)
	summary.Status = audit.StatusSent
	if len(channels) == 0 {
		summary.Status = audit.StatusSkipped
	}
	summary.Add("kind", string(ev.Kind))
	summary.Add("recipients", strings.Join(recipients, ","))
	summary.Add("channels", strings.Join(channels, ","))
	d.trail.Log(summary)
}

// resolveRecipients собирает уникальные адреса. Отсутствие адресата —
// штатный случай и молчаливый пропуск; сбой каталога — warning и пропуск.
func (d *Dispatcher) resolveRecipients(ctx context.Context, ev domain.NotificationEvent) []string {
	type pair struct{ entity, role string }

	var pairs []pair
	for _, role := range rolesFor(ev.Kind) {
		pairs = append(pairs, pair{ev.POV.Entity, role})
	}
	if ev.Kind == domain.EventICMismatch {
		for _, partner := range strings.Split(ev.Fields["partners"], ",") {
			if partner = strings.TrimSpace(partner); partner != "" {
				pairs = append(pairs, pair{partner, domain.RoleController})
			}
		}
	}

	seen := make(map[string]struct{}, len(pairs))
	var out []string
	for _, p := range pairs {
		addr, err := d.dir.Resolve(ctx, p.entity, p.role)
		switch {
		case err == nil:
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
		case errors.Is(err, store.ErrAbsent):
			d.logger.Debug("no recipient configured",
				zap.String("entity", p.entity), zap.String("role", p.role))
		default:
			d.logger.Warn("role directory lookup failed",
				zap.String("entity", p.entity), zap.String("role", p.role), zap.Error(err))
		}
	}
	return out
}

func (d *Dispatcher) webhookURL(ctx context.Context, entity string) string {
	url, err := d.dir.WebhookURL(ctx, entity)
	if err != nil {
		if !errors.Is(err, store.ErrAbsent) {
			d.logger.Warn("webhook url lookup failed", zap.String("entity", entity), zap.Error(err))
		}
		return ""
	}
	return url
}

func (d *Dispatcher) afterAttempt(actx domain.AuditContext, ev domain.NotificationEvent, channel, target string, err error) {
	e := audit.NewEntry(audit.CategoryNotify, actx)
	e.Add("kind", string(ev.Kind))
	e.Add("channel", channel)
	e.Add("target", target)

	if err != nil {
		e.Status = audit.StatusFailed
		e.Add("error", err.Error())
		d.metrics.Deliveries.WithLabelValues(channel, "failed").Inc()
		d.logger.Warn("delivery attempt failed",
			zap.String("channel", channel),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	} else {
		e.Status = audit.StatusSent
		d.metrics.Deliveries.WithLabelValues(channel, "sent").Inc()
		d.logger.Info("notification delivered",
			zap.String("channel", channel),
			zap.String("kind", string(ev.Kind)))
	}
	d.trail.Log(e)
}

// auditContext: инициатор берется из событийных полей, иначе "system".
func (d *Dispatcher) auditContext(ev domain.NotificationEvent) domain.AuditContext {
	user := "system"
	for _, key := range []string{"submitted_by", "approved_by", "rejected_by"} {
		if v := ev.Fields[key]; v != "" {
			user = v
			break
		}
	}
	return domain.AuditContext{
		User:      user,
		Timestamp: time.Now().UTC(),
		Machine:   d.machine,
		Scenario:  ev.POV.Scenario,
		Period:    ev.POV.Period,
		Entity:    ev.POV.Entity,
	}
}
