package customer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/storage"
)

// providerCustomer is what a customer-capable provider returns.
type providerCustomer struct {
	ID string `json:"id"`
}

type Service struct {
	db        *storage.DB
	providers func() *provider.Table
	settings  Settings
	logger    logging.Logger
}

// NewService builds the service. providers is read on every call, so it
// may be the live table of a billing instance still under construction.
func NewService(db *storage.DB, providers func() *provider.Table, settings Settings, logger logging.Logger) *Service {
	return &Service{db: db, providers: providers, settings: settings, logger: logging.OrNop(logger)}
}

func (s *Service) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*Customer, error) {
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}

	record := storage.Record{"email": in.Email}
	if in.Name != "" {
		record["name"] = in.Name
	}

	if s.settings.Provider != "" {
		// Check the unique email first so a conflict does not leave an
		// orphaned customer at the provider.
		taken, err := s.db.FindOne(ctx, Model, condition.Eq("email", in.Email))
		if err != nil {
			return nil, err
		}
		if taken != nil {
			return nil, errors.NewConflict(Model, "email")
		}
		id, err := s.mirror(ctx, in)
		if err != nil {
			return nil, err
		}
		record["providerCustomerId"] = id
	}

	created, err := s.db.Create(ctx, Model, record)
	if err != nil {
		return nil, err
	}
	s.logger.Info("customer created", logging.Model(Model), zap.String("id", created.ID()))
	return FromRecord(created), nil
}

func (s *Service) mirror(ctx context.Context, in CreateCustomerInput) (string, error) {
	p, err := s.providers().Provider(s.settings.Provider)
	if err != nil {
		return "", err
	}
	if !p.HasCapability(provider.CapabilityCustomer) {
		return "", errors.NewConfiguration(
			fmt.Sprintf("provider %q has no %s capability", s.settings.Provider, provider.CapabilityCustomer),
			s.settings.Provider)
	}
	out, err := p.Call(ctx, "createCustomer", in)
	if err != nil {
		return "", err
	}
	ref, err := plugin.DecodeInput[providerCustomer](out)
	if err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", errors.NewInternal(fmt.Sprintf("provider %q returned a customer without id", s.settings.Provider))
	}
	return ref.ID, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if id == "" {
		return nil, errors.NewValidation("id", "", "customer id is required")
	}
	found, err := s.db.FindOne(ctx, Model, condition.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.NewNotFound(Model, id)
	}
	return FromRecord(found), nil
}

// ListCustomers returns customers matching in.Where, oldest first.
func (s *Service) ListCustomers(ctx context.Context, in ListCustomersInput) ([]*Customer, error) {
	if err := binding.Struct(&in); err != nil {
		return nil, binding.AsAppError(err)
	}
	where, err := condition.Parse(in.Where)
	if err != nil {
		return nil, err
	}
	records, err := s.db.FindMany(ctx, Model, where, &storage.FindOptions{
		SortBy: &storage.Sort{Field: "createdAt"},
		Limit:  in.Limit,
		Offset: in.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Customer, len(records))
	for i, r := range records {
		out[i] = FromRecord(r)
	}
	return out, nil
}
