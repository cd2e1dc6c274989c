package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRequest() OrderRequest {
	return OrderRequest{
		Email:      "buyer@example.com",
		ProductIDs: []string{"p1"},
		Payment:    PaymentCreditCard,
		Shipping:   Shipping{Type: ShippingEconomic, Carrier: CarrierFedex},
	}
}

func TestOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *OrderRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*OrderRequest) {}},
		{name: "bad email", mutate: func(r *OrderRequest) { r.Email = "nope" }, wantErr: "is not valid"},
		{name: "no products", mutate: func(r *OrderRequest) { r.ProductIDs = nil }, wantErr: "productIds must not be empty"},
		{name: "bad payment", mutate: func(r *OrderRequest) { r.Payment = "BARTER" }, wantErr: "payment"},
		{name: "bad shipping", mutate: func(r *OrderRequest) { r.Shipping.Type = "SLOW" }, wantErr: "shipping type"},
		{name: "bad carrier", mutate: func(r *OrderRequest) { r.Shipping.Carrier = "DHL" }, wantErr: "carrier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidOrder)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewOrderEvent(t *testing.T) {
	o := &Order{
		Email:        "buyer@example.com",
		ID:           "o1",
		ProductCodes: []string{"A", "B"},
		Billing:      Billing{Payment: PaymentCash, TotalPrice: 30},
	}
	assert.Equal(t, &OrderEvent{
		Email:        "buyer@example.com",
		OrderID:      "o1",
		ProductCodes: []string{"A", "B"},
		BillingTotal: 30,
		RequestID:    "req-1",
	}, NewOrderEvent(o, "req-1"))
}
