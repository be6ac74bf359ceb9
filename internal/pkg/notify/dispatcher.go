package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/forklinehq/forkline/internal/pkg/cache"
	"github.com/forklinehq/forkline/internal/pkg/env"
	"github.com/forklinehq/forkline/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
)

// Notification kinds, part of the idempotency key so one event can fan
// out to different notifications without colliding.
const (
	KindWelcome    = "welcome"
	KindReceipt    = "receipt"
	KindAdminAlert = "admin_alert"
)

// idempotencyTTL bounds how long a sent-marker is kept. Provider
// redelivery happens within days, not months.
const idempotencyTTL = 30 * 24 * time.Hour

// SentMarker records which notifications have already gone out.
// Backed by Redis in production; tests inject a map.
type SentMarker interface {
	// MarkSent returns true when this call claimed the key, i.e. the
	// notification has not been sent before.
	MarkSent(key string) (bool, error)
}

type cacheSentMarker struct{}

func (cacheSentMarker) MarkSent(key string) (bool, error) {
	return cache.SetNX(key, 1, idempotencyTTL)
}

// Dispatcher fires best-effort notifications. Every failure is logged
// and swallowed; nothing here ever reaches the reconciliation path.
type Dispatcher struct {
	mailer     mail.Mailer
	sentMarker SentMarker
	adminEmail string
}

// NewDispatcher creates a dispatcher over the given mailer with the
// Redis-backed sent-marker.
func NewDispatcher(mailer mail.Mailer) *Dispatcher {
	return &Dispatcher{
		mailer:     mailer,
		sentMarker: cacheSentMarker{},
		adminEmail: strings.TrimSpace(env.GetEnv("ADMIN_ALERT_EMAIL", "")),
	}
}

// NewDispatcherWithMarker is the test seam for the idempotency store.
func NewDispatcherWithMarker(mailer mail.Mailer, marker SentMarker, adminEmail string) *Dispatcher {
	return &Dispatcher{mailer: mailer, sentMarker: marker, adminEmail: adminEmail}
}

func (d *Dispatcher) NotifyWelcome(eventID, recipient, plan string) {
	subject := "Welcome to Forkline"
	body := fmt.Sprintf(
		"<p>Your subscription is set up.</p><p>Plan: <strong>%s</strong></p>"+
			"<p>We will let you know as soon as your listing is verified.</p>", plan)
	d.send(KindWelcome, eventID, recipient, subject, body)
}

func (d *Dispatcher) NotifyPaymentReceipt(eventID, recipient string, amountCents int64, currency string) {
	subject := "Your Forkline payment receipt"
	body := fmt.Sprintf("<p>We received your payment of <strong>%s</strong>. Thank you!</p>",
		formatAmount(amountCents, currency))
	d.send(KindReceipt, eventID, recipient, subject, body)
}

func (d *Dispatcher) NotifyAdminAlert(eventID, subject, message string) {
	if d.adminEmail == "" {
		log.Debugf("[Notify] No admin alert email configured, dropping alert for event %s", eventID)
		return
	}
	d.send(KindAdminAlert, eventID, d.adminEmail, "[Forkline] "+subject, "<p>"+message+"</p>")
}

// send applies the idempotency guard and delivers one email. Each
// attempt is independent: a failure here affects neither other
// notifications nor the caller.
func (d *Dispatcher) send(kind, eventID, recipient, subject, body string) {
	if strings.TrimSpace(recipient) == "" {
		log.Warnf("[Notify] Dropping %s notification for event %s: empty recipient", kind, eventID)
		return
	}

	key := fmt.Sprintf("notify:%s:%s", kind, eventID)
	claimed, err := d.sentMarker.MarkSent(key)
	if err != nil {
		// Prefer a possible duplicate email over a silently lost one.
		log.Warnf("[Notify] Idempotency check for %s failed, sending anyway: %v", key, err)
	} else if !claimed {
		log.Debugf("[Notify] Skipping %s notification for event %s: already sent", kind, eventID)
		return
	}

	if err := d.mailer.Send(recipient, subject, body); err != nil {
		log.Errorf("[Notify] Failed to send %s notification for event %s to %s: %v", kind, eventID, recipient, err)
		return
	}
	log.Infof("[Notify] Sent %s notification for event %s", kind, eventID)
}

func formatAmount(amountCents int64, currency string) string {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "USD"
	}
	return fmt.Sprintf("%.2f %s", float64(amountCents)/100, cur)
}
