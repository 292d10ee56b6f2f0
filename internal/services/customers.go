package services

import (
	"context"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/store"
	"charterops/internal/utils"
)

// CustomerDirectory resolves the customer a booking is made for.
type CustomerDirectory interface {
	FindOrCreateByPhone(ctx context.Context, phone, name string) (models.Customer, error)
}

// StoreCustomerDirectory keeps customers in the store's customers table,
// keyed by normalized phone.
type StoreCustomerDirectory struct {
	Store store.Store
}

func (d StoreCustomerDirectory) FindOrCreateByPhone(ctx context.Context, phone, name string) (models.Customer, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" {
		return models.Customer{}, domain.ValidationError{Field: "customer_phone", Msg: "required"}
	}
	c, err := d.Store.FindCustomerByPhone(ctx, phone)
	if err == nil {
		return c, nil
	}
	if !domain.IsNotFound(err) {
		return models.Customer{}, err
	}

	c = models.Customer{Phone: phone, Name: utils.NormalizeSpace(name)}
	if err := d.Store.CreateCustomer(ctx, &c); err != nil {
		// Lost a race with another booking for the same phone.
		if domain.IsConflict(err) {
			return d.Store.FindCustomerByPhone(ctx, phone)
		}
		return models.Customer{}, err
	}
	return c, nil
}
