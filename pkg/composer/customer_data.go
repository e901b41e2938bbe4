package composer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

const recentOperationsLimit = 10

// CustomerData is the snapshot slides are hydrated against. Optional parts are nil when they do
// not exist or could not be fetched.
type CustomerData struct {
	Customer   model.Customer        `json:"customer"`
	Contacts   []model.Contact       `json:"contacts"`
	Contract   *model.Contract       `json:"contract,omitempty"`
	Renewal    *model.Renewal        `json:"renewal,omitempty"`
	Operations []model.Operation     `json:"operations"`
	Tickets    []model.SupportTicket `json:"tickets"`
	Properties model.JSONB           `json:"properties,omitempty"`
}

type CustomerDataProvider interface {
	CustomerData(ctx context.Context, customerID uuid.UUID) (*CustomerData, error)
}

// StoreCustomerData reads customer data through the customer repository. Only a missing customer
// is an error; every other failed fetch leaves its field empty.
type StoreCustomerData struct {
	repo   store.CustomerRepository
	logger *zap.Logger
}

func NewStoreCustomerData(repo store.CustomerRepository, logger *zap.Logger) *StoreCustomerData {
	return &StoreCustomerData{repo: repo, logger: logger}
}

func (p *StoreCustomerData) CustomerData(ctx context.Context, customerID uuid.UUID) (*CustomerData, error) {
	customer, err := p.repo.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	data := &CustomerData{
		Customer:   *customer,
		Contacts:   []model.Contact{},
		Operations: []model.Operation{},
		Tickets:    []model.SupportTicket{},
	}
	log := logging.From(ctx, p.logger).With(zap.String("customer_id", customerID.String()))

	if contacts, err := p.repo.Contacts(ctx, customerID); p.ok(log, "contacts", err) {
		data.Contacts = contacts
	}
	if contract, err := p.repo.ActiveContract(ctx, customerID); p.ok(log, "contract", err) {
		data.Contract = contract
	}
	if renewal, err := p.repo.UpcomingRenewal(ctx, customerID); p.ok(log, "renewal", err) {
		data.Renewal = renewal
	}
	if ops, err := p.repo.RecentOperations(ctx, customerID, recentOperationsLimit); p.ok(log, "operations", err) {
		data.Operations = ops
	}
	if tickets, err := p.repo.OpenTickets(ctx, customerID); p.ok(log, "tickets", err) {
		data.Tickets = tickets
	}
	if props, err := p.repo.Properties(ctx, customerID); p.ok(log, "properties", err) && props != nil {
		data.Properties = props.Properties
	}
	return data, nil
}

func (p *StoreCustomerData) ok(log *zap.Logger, field string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		return false
	default:
		log.Warn("customer data fetch failed, leaving field empty", zap.String("field", field), zap.Error(err))
		return false
	}
}
