package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/plugins/customer"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// providerSubscription is what a subscription-capable provider returns.
type providerSubscription struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd"`
}

type Service struct {
	db        *storage.DB
	providers func() *provider.Table
	settings  Settings
	logger    logging.Logger
	now       func() time.Time
}

// NewService builds the service. providers is read on every call.
func NewService(db *storage.DB, providers func() *provider.Table, settings Settings, logger logging.Logger) *Service {
	return &Service{
		db:        db,
		providers: providers,
		settings:  settings,
		logger:    logging.OrNop(logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*Subscription, error) {
	if err := defaults.Set(&in); err != nil {
		return nil, errors.NewInternal(err.Error())
	}
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}
	cus, err := s.customer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	out, err := s.call(ctx, provider.CapabilitySubscription, "createSubscription", map[string]any{
		"customerId": providerCustomerID(cus),
		"plan":       in.Plan,
		"quantity":   in.Quantity,
	})
	if err != nil {
		return nil, err
	}
	ps, err := plugin.DecodeInput[providerSubscription](out)
	if err != nil {
		return nil, err
	}

	var created storage.Record
	err = s.db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
		record := storage.Record{
			"customerId":             in.CustomerID,
			"plan":                   in.Plan,
			"status":                 statusOr(ps.Status, StatusIncomplete),
			"quantity":               in.Quantity,
			"providerSubscriptionId": ps.ID,
			"cancelAtPeriodEnd":      ps.CancelAtPeriodEnd,
		}
		if !ps.CurrentPeriodEnd.IsZero() {
			record["periodEnd"] = ps.CurrentPeriodEnd
		}
		var err error
		if created, err = tx.Create(ctx, Model, record); err != nil {
			return err
		}
		return setCustomerStatus(ctx, tx, in.CustomerID, created.String("status"))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription created",
		logging.Model(Model),
		logging.Provider(s.settings.Provider),
		zap.String("id", created.ID()),
		zap.String("plan", in.Plan),
	)
	return fromRecord(created), nil
}

// CancelSubscription cancels at the provider, stores the new state and runs
// CancelHook with the updated record as result.
func (s *Service) CancelSubscription(ctx context.Context, in CancelSubscriptionInput) (*Subscription, error) {
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}
	byID := condition.Eq(schema.IDField, in.SubscriptionID)
	current, err := s.db.FindOne(ctx, Model, byID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewNotFound(Model, in.SubscriptionID)
	}
	if current.String("status") == StatusCanceled {
		return nil, errors.NewConflict(Model, "status")
	}

	out, err := s.call(ctx, provider.CapabilitySubscription, "cancelSubscription", map[string]any{
		"subscriptionId": current.String("providerSubscriptionId"),
		"atPeriodEnd":    in.AtPeriodEnd,
	})
	if err != nil {
		return nil, err
	}
	ps, err := plugin.DecodeInput[providerSubscription](out)
	if err != nil {
		return nil, err
	}

	status := statusOr(ps.Status, StatusCanceled)
	var updated storage.Record
	err = s.db.Transaction(ctx, func(ctx context.Context, tx *storage.DB) error {
		var err error
		updated, err = tx.Update(ctx, Model, byID, storage.Record{
			"status":            status,
			"cancelAtPeriodEnd": ps.CancelAtPeriodEnd,
		})
		if err != nil {
			return err
		}
		return setCustomerStatus(ctx, tx, current.String("customerId"), status)
	})
	if err != nil {
		return nil, err
	}

	if hooks := s.db.Hooks(); hooks != nil {
		hooks.Run(ctx, CancelHook, &hook.Context{
			Name:   CancelHook,
			Model:  Model,
			Data:   map[string]any{"atPeriodEnd": in.AtPeriodEnd},
			Where:  byID,
			Result: updated,
		})
	}
	s.logger.Info("subscription canceled",
		logging.Model(Model),
		zap.String("id", in.SubscriptionID),
		zap.Bool("atPeriodEnd", in.AtPeriodEnd),
	)
	return fromRecord(updated), nil
}

// ListActive returns active or trialing subscriptions that are still
// running: not scheduled to cancel, or scheduled but inside the paid
// period.
func (s *Service) ListActive(ctx context.Context, in ListActiveInput) ([]*Subscription, error) {
	conds := []condition.Condition{
		condition.New("status", condition.OpIn, []string{StatusActive, StatusTrialing}),
		condition.Any(
			condition.Eq("cancelAtPeriodEnd", false),
			condition.New("periodEnd", condition.OpGt, s.now()),
		),
	}
	if in.CustomerID != "" {
		conds = append(conds, condition.Eq("customerId", in.CustomerID))
	}
	records, err := s.db.FindMany(ctx, Model, condition.All(conds...), &storage.FindOptions{
		SortBy: &storage.Sort{Field: "createdAt"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Subscription, len(records))
	for i, r := range records {
		out[i] = fromRecord(r)
	}
	return out, nil
}

func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	if err := defaults.Set(&in); err != nil {
		return nil, errors.NewInternal(err.Error())
	}
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}
	cus, err := s.customer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"customerId": providerCustomerID(cus),
		"plan":       in.Plan,
		"quantity":   in.Quantity,
		"successUrl": in.SuccessURL,
	}
	if in.CancelURL != "" {
		params["cancelUrl"] = in.CancelURL
	}
	out, err := s.call(ctx, provider.CapabilityCheckoutSession, "createCheckoutSession", params)
	if err != nil {
		return nil, err
	}
	session, err := plugin.DecodeInput[CheckoutSession](out)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) customer(ctx context.Context, id string) (storage.Record, error) {
	found, err := s.db.FindOne(ctx, customer.Model, condition.Eq(schema.IDField, id))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.NewNotFound(customer.Model, id)
	}
	return found, nil
}

func (s *Service) call(ctx context.Context, capability provider.Capability, method string, input any) (any, error) {
	p, err := s.providers().Provider(s.settings.Provider)
	if err != nil {
		return nil, err
	}
	if !p.HasCapability(capability) {
		return nil, errors.NewConfiguration(
			fmt.Sprintf("provider %q has no %s capability", s.settings.Provider, capability),
			s.settings.Provider)
	}
	return p.Call(ctx, method, input)
}

func setCustomerStatus(ctx context.Context, db *storage.DB, customerID, status string) error {
	_, err := db.Update(ctx, customer.Model, condition.Eq(schema.IDField, customerID), storage.Record{
		"subscriptionStatus": status,
	})
	return err
}

// providerCustomerID prefers the provider's id for the customer.
func providerCustomerID(cus storage.Record) string {
	if id := cus.String("providerCustomerId"); id != "" {
		return id
	}
	return cus.ID()
}

func statusOr(status, fallback string) string {
	if status == "" {
		return fallback
	}
	return status
}
