package usage

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugins/customer"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

type Service struct {
	db     *storage.DB
	logger logging.Logger
}

func NewService(db *storage.DB, logger logging.Logger) *Service {
	return &Service{db: db, logger: logging.OrNop(logger)}
}

// RecordUsage stores a positive quantity for an existing customer.
func (s *Service) RecordUsage(ctx context.Context, in RecordUsageInput) (*Record, error) {
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}
	if !in.Quantity.IsPositive() {
		return nil, errors.NewValidation("quantity", "", "quantity must be positive")
	}

	found, err := s.db.FindOne(ctx, customer.Model, condition.Eq(schema.IDField, in.CustomerID))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.NewNotFound(customer.Model, in.CustomerID)
	}

	data := storage.Record{
		"customerId": in.CustomerID,
		"feature":    in.Feature,
		"quantity":   in.Quantity.InexactFloat64(),
	}
	if in.RecordedAt != nil {
		data["recordedAt"] = *in.RecordedAt
	}
	created, err := s.db.Create(ctx, Model, data)
	if err != nil {
		return nil, err
	}
	return fromRecord(created), nil
}

// GetUsage totals usage since in.Since, optionally for one feature.
func (s *Service) GetUsage(ctx context.Context, in GetUsageInput) (*Summary, error) {
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}

	where := []condition.Condition{condition.Eq("customerId", in.CustomerID)}
	if in.Feature != "" {
		where = append(where, condition.Eq("feature", in.Feature))
	}
	if in.Since != nil {
		where = append(where, condition.New("recordedAt", condition.OpGte, in.Since.UTC()))
	}

	records, err := s.db.FindMany(ctx, Model, condition.All(where...), nil)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		CustomerID: in.CustomerID,
		Total:      decimal.Zero,
		Features:   make(map[string]decimal.Decimal),
	}
	for _, r := range records {
		q := decimal.NewFromFloat(r.Float("quantity"))
		feature := r.String("feature")
		summary.Total = summary.Total.Add(q)
		summary.Features[feature] = summary.Features[feature].Add(q)
		summary.Count++
	}
	return summary, nil
}

// purgeCustomers removes the usage of customers about to be deleted. Inside
// a transaction it runs on the transaction's handle.
func (s *Service) purgeCustomers(ctx context.Context, hc *hook.Context) error {
	db := storage.FromContext(ctx, s.db)
	where, _ := hc.Where.(condition.Condition)
	customers, err := db.FindMany(ctx, customer.Model, where, nil)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		return nil
	}
	ids := make([]any, len(customers))
	for i, c := range customers {
		ids[i] = c.ID()
	}
	if err := db.Delete(ctx, Model, condition.New("customerId", condition.OpIn, ids)); err != nil {
		return err
	}
	s.logger.Debug("usage purged", logging.Model(Model), zap.Int("customers", len(ids)))
	return nil
}
