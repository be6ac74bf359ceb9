package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forklinehq/forkline/app/models"
	"github.com/forklinehq/forkline/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const providerFetchTimeout = 10 * time.Second

// Notifier dispatches best-effort notifications after a successful
// reconciliation. Implementations must swallow their own failures;
// nothing here may roll back or fail a committed write.
type Notifier interface {
	NotifyWelcome(eventID, recipient, plan string)
	NotifyPaymentReceipt(eventID, recipient string, amountCents int64, currency string)
	NotifyAdminAlert(eventID, subject, message string)
}

// Outcome describes what a reconciliation did, for response codes and
// logging. Ignored outcomes are expected no-ops, not failures.
type Outcome struct {
	Applied      bool
	Ignored      bool
	Reason       string
	Subscription *models.Subscription
}

// Service is the billing event reconciliation engine. Stateless between
// invocations; all durable state lives in the Subscription rows.
type Service struct {
	repo     Repository
	provider ProviderClient
	notifier Notifier
	catalog  *PlanCatalog
}

// NewService creates a reconciliation service from injected collaborators.
func NewService(repo Repository, provider ProviderClient, notifier Notifier, catalog *PlanCatalog) *Service {
	return &Service{repo: repo, provider: provider, notifier: notifier, catalog: catalog}
}

// NewServiceFromDB wires a service over a GORM handle.
func NewServiceFromDB(db *gorm.DB, provider ProviderClient, notifier Notifier, catalog *PlanCatalog) *Service {
	return NewService(NewRepository(db), provider, notifier, catalog)
}

// ProcessEvent reconciles one authenticated event into local state.
// A returned error means the write failed and the provider should
// redeliver; every expected miss or unknown input is absorbed as an
// Ignored outcome.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) (*Outcome, error) {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case KindSubscriptionCreated, KindSubscriptionUpdated:
		return s.applySubscriptionState(ctx, ev)
	case KindSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev)
	case KindInvoicePaymentSucceeded:
		return s.handleInvoicePaymentSucceeded(ctx, ev)
	case KindInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, ev)
	default:
		log.Debugf("[Billing] Ignoring unrecognized event type %q (event %s)", ev.TypeRaw, ev.ID)
		return &Outcome{Ignored: true, Reason: "unrecognized-event-type"}, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *Event) (*Outcome, error) {
	if ev.CheckoutMode != "" && ev.CheckoutMode != "subscription" {
		log.Debugf("[Billing] Ignoring checkout session %s with mode %q", ev.CheckoutSessionID, ev.CheckoutMode)
		return &Outcome{Ignored: true, Reason: "non-subscription-checkout"}, nil
	}
	if ev.SubscriptionID == "" {
		log.Warnf("[Billing] Checkout session %s carries no subscription (event %s)", ev.CheckoutSessionID, ev.ID)
		return &Outcome{Ignored: true, Reason: "checkout-without-subscription"}, nil
	}

	enriched, err := s.enrichFromProvider(ctx, ev, KindSubscriptionCreated)
	if err != nil {
		return nil, err
	}

	outcome, err := s.applySubscriptionState(ctx, enriched)
	if err != nil || outcome.Subscription == nil {
		return outcome, err
	}

	sub := outcome.Subscription
	s.dispatchAsync(func() {
		recipient, ok := s.ownerEmail(sub.OwnerID, ev.ID)
		if !ok {
			return
		}
		s.notifier.NotifyWelcome(ev.ID, recipient, sub.Plan)
	})
	return outcome, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev *Event) (*Outcome, error) {
	sub, strategy, err := s.resolve(ev)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Outcome{Ignored: true, Reason: "no-local-subscription"}, nil
	}

	updated, written, err := s.repo.UpdateSubscription(sub.ID, func(row *models.Subscription) {
		row.Status = models.SubscriptionStatusCanceled
		row.Plan = string(entitlements.PlanFree)
		row.TrialEndsAt = nil
		if row.CanceledAt == nil {
			now := time.Now().UTC()
			row.CanceledAt = &now
		}
		if ev.SubscriptionID != "" {
			row.ExternalSubscriptionID = ev.SubscriptionID
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cancel write for subscription %d failed: %w", sub.ID, err)
	}

	log.Infof("[Billing] Canceled subscription %d (event %s, resolved via %s, written=%t)",
		updated.ID, ev.ID, strategy, written)
	return &Outcome{Applied: written, Subscription: updated}, nil
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, ev *Event) (*Outcome, error) {
	if ev.SubscriptionID == "" {
		log.Debugf("[Billing] Invoice %s has no subscription reference (event %s)", ev.InvoiceID, ev.ID)
		return &Outcome{Ignored: true, Reason: "invoice-without-subscription"}, nil
	}

	enriched, err := s.enrichFromProvider(ctx, ev, KindSubscriptionUpdated)
	if err != nil {
		return nil, err
	}

	outcome, err := s.applySubscriptionState(ctx, enriched)
	if err != nil || outcome.Subscription == nil {
		return outcome, err
	}

	// Receipt dispatch is independent of the state write above; a
	// failure here never surfaces to the caller.
	sub := outcome.Subscription
	amount, currency := ev.AmountCents, ev.Currency
	s.dispatchAsync(func() {
		recipient, ok := s.ownerEmail(sub.OwnerID, ev.ID)
		if !ok {
			return
		}
		s.notifier.NotifyPaymentReceipt(ev.ID, recipient, amount, currency)
	})
	return outcome, nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, ev *Event) (*Outcome, error) {
	sub, strategy, err := s.resolve(ev)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Outcome{Ignored: true, Reason: "no-local-subscription"}, nil
	}

	// A failed payment degrades status only. The plan downgrade runs on
	// a separate, slower clock via subscription_deleted.
	updated, written, err := s.repo.UpdateSubscription(sub.ID, func(row *models.Subscription) {
		row.Status = MapStatus("past_due", row.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("past_due write for subscription %d failed: %w", sub.ID, err)
	}

	log.Infof("[Billing] Payment failed for subscription %d (event %s, resolved via %s, written=%t)",
		updated.ID, ev.ID, strategy, written)
	return &Outcome{Applied: written, Subscription: updated}, nil
}

// applySubscriptionState is the shared created/updated path: resolve
// identity, map status, resolve plan, one atomic upsert.
func (s *Service) applySubscriptionState(ctx context.Context, ev *Event) (*Outcome, error) {
	sub, strategy, err := s.resolve(ev)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Outcome{Ignored: true, Reason: "no-local-subscription"}, nil
	}

	planKnown := false
	var plan entitlements.Plan
	if ev.PriceID != "" {
		var perr error
		plan, _, perr = s.catalog.Resolve(ev.PriceID)
		if perr != nil {
			log.Warnf("[Billing] Unmapped price %q on event %s, leaving plan untouched", ev.PriceID, ev.ID)
		} else {
			planKnown = true
		}
	}

	updated, written, err := s.repo.UpdateSubscription(sub.ID, func(row *models.Subscription) {
		if ev.SubscriptionID != "" {
			row.ExternalSubscriptionID = ev.SubscriptionID
		}
		if ev.CustomerID != "" {
			row.ExternalCustomerID = ev.CustomerID
		}
		row.Status = MapStatus(ev.StatusRaw, row.Status)

		if row.Status == models.SubscriptionStatusCanceled {
			row.Plan = string(entitlements.PlanFree)
			if row.CanceledAt == nil {
				now := time.Now().UTC()
				row.CanceledAt = &now
			}
		} else if planKnown {
			row.Plan = string(plan)
		}

		if ev.CurrentPeriodStart != nil {
			row.CurrentPeriodStart = ev.CurrentPeriodStart
		}
		if ev.CurrentPeriodEnd != nil {
			row.CurrentPeriodEnd = ev.CurrentPeriodEnd
		}
		// The trial clock must not run before verification.
		if row.Status == models.SubscriptionStatusPending {
			row.TrialEndsAt = nil
		} else if ev.TrialEnd != nil {
			row.TrialEndsAt = ev.TrialEnd
		}
	})
	if err != nil {
		return nil, fmt.Errorf("state write for subscription %d failed: %w", sub.ID, err)
	}

	log.Infof("[Billing] Reconciled subscription %d to status=%s plan=%s (event %s, resolved via %s, written=%t)",
		updated.ID, updated.Status, updated.Plan, ev.ID, strategy, written)
	return &Outcome{Applied: written, Subscription: updated}, nil
}

// resolve runs the identity cascade, absorbing the expected miss.
func (s *Service) resolve(ev *Event) (*models.Subscription, string, error) {
	sub, strategy, err := ResolveSubscription(s.repo, ev)
	if err != nil {
		if errors.Is(err, ErrNoLocalSubscription) {
			log.Warnf("[Billing] No local subscription for event %s (type=%s sub=%q customer=%q)",
				ev.ID, ev.TypeRaw, ev.SubscriptionID, ev.CustomerID)
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("subscription lookup failed for event %s: %w", ev.ID, err)
	}
	return sub, strategy, nil
}

// enrichFromProvider fetches the provider's current subscription object
// and folds it into a synthetic event that runs the shared update path.
func (s *Service) enrichFromProvider(ctx context.Context, ev *Event, kind EventKind) (*Event, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
	defer cancel()

	detail, err := s.provider.FetchSubscription(fetchCtx, ev.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("provider fetch for subscription %s failed: %w", ev.SubscriptionID, err)
	}

	enriched := &Event{
		ID:                 ev.ID,
		Kind:               kind,
		TypeRaw:            ev.TypeRaw,
		Livemode:           ev.Livemode,
		SubscriptionID:     detail.ID,
		CustomerID:         detail.CustomerID,
		StatusRaw:          detail.Status,
		PriceID:            detail.PriceID,
		CancelAtPeriodEnd:  detail.CancelAtPeriodEnd,
		CurrentPeriodStart: detail.CurrentPeriodStart,
		CurrentPeriodEnd:   detail.CurrentPeriodEnd,
		TrialEnd:           detail.TrialEnd,
	}
	if enriched.CustomerID == "" {
		enriched.CustomerID = ev.CustomerID
	}
	return enriched, nil
}

func (s *Service) ownerEmail(ownerID uint, eventID string) (string, bool) {
	owner, err := s.repo.GetUserByID(ownerID)
	if err != nil {
		log.Warnf("[Billing] Owner %d lookup failed for notification (event %s): %v", ownerID, eventID, err)
		return "", false
	}
	email := strings.TrimSpace(owner.Email)
	if email == "" {
		return "", false
	}
	return email, true
}

// dispatchAsync runs a notification after the reconciliation outcome is
// final. Never blocks or fails the caller.
func (s *Service) dispatchAsync(fn func()) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Billing] Notification dispatch panicked: %v", r)
			}
		}()
		fn()
	}()
}
