package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind identifies the provider event types the reconciler acts on.
type EventKind string

const (
	KindCheckoutCompleted       EventKind = "checkout.session.completed"
	KindSubscriptionCreated     EventKind = "customer.subscription.created"
	KindSubscriptionUpdated     EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted     EventKind = "customer.subscription.deleted"
	KindInvoicePaymentSucceeded EventKind = "invoice.payment_succeeded"
	KindInvoicePaymentFailed    EventKind = "invoice.payment_failed"
	KindUnknown                 EventKind = ""
)

// Event is the provider webhook payload decoded once at the boundary.
// All downstream code works on this typed value instead of re-reading
// raw JSON shapes.
type Event struct {
	ID       string
	Kind     EventKind
	TypeRaw  string
	Livemode bool

	// Correlation keys. SubscriptionID may be empty on first delivery
	// (a local pending record exists before the provider assigns one).
	SubscriptionID string
	CustomerID     string

	// Subscription state fields (subscription.* events and enriched
	// checkout/invoice paths).
	StatusRaw          string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool

	// Checkout fields.
	CheckoutSessionID string
	CheckoutMode      string

	// Invoice fields.
	InvoiceID   string
	AmountCents int64
	Currency    string
}

// IsCreationClass reports whether the event implies subscription
// creation or first sync, which enables the pending-first identity
// lookup fallback.
func (e *Event) IsCreationClass() bool {
	switch e.Kind {
	case KindCheckoutCompleted, KindSubscriptionCreated:
		return true
	default:
		return false
	}
}

// DecodeEvent parses a raw webhook body into a typed Event. Unrecognized
// event types decode successfully with KindUnknown so the caller can
// acknowledge and skip them; a body that is not a valid event envelope
// is an error.
func DecodeEvent(payload []byte) (*Event, error) {
	var envelope struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Livemode bool   `json:"livemode"`
		Data     struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		return nil, errors.New("webhook payload missing event id or type")
	}

	ev := &Event{
		ID:       strings.TrimSpace(envelope.ID),
		TypeRaw:  strings.TrimSpace(envelope.Type),
		Livemode: envelope.Livemode,
	}

	switch EventKind(ev.TypeRaw) {
	case KindCheckoutCompleted:
		ev.Kind = KindCheckoutCompleted
		if err := decodeCheckoutObject(envelope.Data.Object, ev); err != nil {
			return nil, err
		}
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		ev.Kind = EventKind(ev.TypeRaw)
		if err := decodeSubscriptionObject(envelope.Data.Object, ev); err != nil {
			return nil, err
		}
	case KindInvoicePaymentSucceeded, KindInvoicePaymentFailed:
		ev.Kind = EventKind(ev.TypeRaw)
		if err := decodeInvoiceObject(envelope.Data.Object, ev); err != nil {
			return nil, err
		}
	default:
		ev.Kind = KindUnknown
	}

	return ev, nil
}

func decodeCheckoutObject(raw json.RawMessage, ev *Event) error {
	var obj struct {
		ID           string          `json:"id"`
		Mode         string          `json:"mode"`
		Customer     string          `json:"customer"`
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("invalid checkout session object: %w", err)
	}
	ev.CheckoutSessionID = strings.TrimSpace(obj.ID)
	ev.CheckoutMode = strings.ToLower(strings.TrimSpace(obj.Mode))
	ev.CustomerID = strings.TrimSpace(obj.Customer)
	ev.SubscriptionID = normalizeObjectRef(obj.Subscription)
	return nil
}

func decodeSubscriptionObject(raw json.RawMessage, ev *Event) error {
	var obj struct {
		ID                 string `json:"id"`
		Customer           string `json:"customer"`
		Status             string `json:"status"`
		CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
		CurrentPeriodStart int64  `json:"current_period_start"`
		CurrentPeriodEnd   int64  `json:"current_period_end"`
		TrialEnd           int64  `json:"trial_end"`
		Items              struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("invalid subscription object: %w", err)
	}
	if strings.TrimSpace(obj.ID) == "" {
		return errors.New("subscription object missing id")
	}
	ev.SubscriptionID = strings.TrimSpace(obj.ID)
	ev.CustomerID = strings.TrimSpace(obj.Customer)
	ev.StatusRaw = strings.ToLower(strings.TrimSpace(obj.Status))
	ev.CancelAtPeriodEnd = obj.CancelAtPeriodEnd
	ev.CurrentPeriodStart = unixToTime(obj.CurrentPeriodStart)
	ev.CurrentPeriodEnd = unixToTime(obj.CurrentPeriodEnd)
	ev.TrialEnd = unixToTime(obj.TrialEnd)
	if len(obj.Items.Data) > 0 {
		ev.PriceID = strings.TrimSpace(obj.Items.Data[0].Price.ID)
	}
	return nil
}

func decodeInvoiceObject(raw json.RawMessage, ev *Event) error {
	var obj struct {
		ID           string          `json:"id"`
		Customer     string          `json:"customer"`
		Subscription json.RawMessage `json:"subscription"`
		AmountPaid   int64           `json:"amount_paid"`
		AmountDue    int64           `json:"amount_due"`
		Currency     string          `json:"currency"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("invalid invoice object: %w", err)
	}
	ev.InvoiceID = strings.TrimSpace(obj.ID)
	ev.CustomerID = strings.TrimSpace(obj.Customer)
	ev.SubscriptionID = normalizeObjectRef(obj.Subscription)
	ev.Currency = strings.ToLower(strings.TrimSpace(obj.Currency))
	ev.AmountCents = obj.AmountPaid
	if ev.AmountCents == 0 {
		ev.AmountCents = obj.AmountDue
	}
	return nil
}

// normalizeObjectRef accepts either a plain string ID or an expanded
// object carrying an "id" field and returns the string ID.
func normalizeObjectRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func unixToTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
