package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guidepath/guidepath/pkg/model"
)

type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

func (r *CustomerRepository) Contacts(ctx context.Context, customerID uuid.UUID) ([]model.Contact, error) {
	var contacts []model.Contact
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("is_primary DESC, name ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *CustomerRepository) ActiveContract(ctx context.Context, customerID uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, "active").
		Order("start_date DESC").
		First(&contract).Error
	if err != nil {
		return nil, translate(err)
	}
	return &contract, nil
}

func (r *CustomerRepository) UpcomingRenewal(ctx context.Context, customerID uuid.UUID) (*model.Renewal, error) {
	var renewal model.Renewal
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND renewal_date >= ?", customerID, time.Now()).
		Order("renewal_date ASC").
		First(&renewal).Error
	if err != nil {
		return nil, translate(err)
	}
	return &renewal, nil
}

func (r *CustomerRepository) RecentOperations(ctx context.Context, customerID uuid.UUID, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = 20
	}
	var operations []model.Operation
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&operations).Error
	return operations, err
}

func (r *CustomerRepository) OpenTickets(ctx context.Context, customerID uuid.UUID) ([]model.SupportTicket, error) {
	var tickets []model.SupportTicket
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND closed_at IS NULL", customerID).
		Order("opened_at DESC").
		Find(&tickets).Error
	return tickets, err
}

func (r *CustomerRepository) Properties(ctx context.Context, customerID uuid.UUID) (*model.CustomerProperties, error) {
	var props model.CustomerProperties
	if err := r.db.WithContext(ctx).First(&props, "customer_id = ?", customerID).Error; err != nil {
		return nil, translate(err)
	}
	return &props, nil
}
