package billing

import (
	"errors"

	"github.com/forklinehq/forkline/app/models"
	"gorm.io/gorm"
)

// ErrNoLocalSubscription means no local record matches the event. This
// is an expected no-op for unrelated customers and test events, not an
// error condition.
var ErrNoLocalSubscription = errors.New("no local subscription matches event")

// lookupStrategy is one step of the identity resolution cascade. The
// cascade is an ordered decision table so fallback rules can be added
// and tested independently.
type lookupStrategy struct {
	name    string
	applies func(*Event) bool
	find    func(Repository, *Event) (*models.Subscription, error)
}

var lookupStrategies = []lookupStrategy{
	{
		// Already-linked subscriptions carry the provider ID directly.
		name: "external-subscription-id",
		applies: func(ev *Event) bool {
			return ev.SubscriptionID != ""
		},
		find: func(repo Repository, ev *Event) (*models.Subscription, error) {
			return repo.FindByExternalSubscriptionID(ev.SubscriptionID)
		},
	},
	{
		// A checkout just completed: link the newest pending record for
		// this customer rather than a historical active one.
		name: "pending-by-customer",
		applies: func(ev *Event) bool {
			return ev.CustomerID != "" && ev.IsCreationClass()
		},
		find: func(repo Repository, ev *Event) (*models.Subscription, error) {
			return repo.FindPendingByCustomerID(ev.CustomerID)
		},
	},
	{
		// Resubscribing customers may have several historical records;
		// recency wins.
		name: "latest-by-customer",
		applies: func(ev *Event) bool {
			return ev.CustomerID != ""
		},
		find: func(repo Repository, ev *Event) (*models.Subscription, error) {
			return repo.FindLatestByCustomerID(ev.CustomerID)
		},
	},
}

// ResolveSubscription walks the lookup cascade and returns the first
// hit plus the name of the strategy that matched, for logging.
func ResolveSubscription(repo Repository, ev *Event) (*models.Subscription, string, error) {
	for _, strategy := range lookupStrategies {
		if !strategy.applies(ev) {
			continue
		}
		sub, err := strategy.find(repo, ev)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, strategy.name, err
		}
		return sub, strategy.name, nil
	}
	return nil, "", ErrNoLocalSubscription
}
