// Package models defines orders and the events they emit.
package models

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// Order event types.
const (
	EventOrderCreated = "ORDER_CREATED"
	EventOrderDeleted = "ORDER_DELETED"

	// EventPrefix matches every order event sort key.
	EventPrefix = "ORDER_"
)

// Payment methods.
const (
	PaymentCash       = "CASH"
	PaymentDebitCard  = "DEBIT_CARD"
	PaymentCreditCard = "CREDIT_CARD"
)

// Shipping options.
const (
	ShippingUrgent   = "URGENT"
	ShippingEconomic = "ECONOMIC"

	CarrierCorreios = "CORREIOS"
	CarrierFedex    = "FEDEX"
)

// ErrInvalidOrder wraps order validation failures.
var ErrInvalidOrder = errors.New("invalid order")

type Billing struct {
	Payment    string  `json:"payment"`
	TotalPrice float64 `json:"totalPrice"`
}

type Shipping struct {
	Type    string `json:"type"`
	Carrier string `json:"carrier"`
}

// Order is a placed order.
type Order struct {
	Email        string    `json:"email"`
	ID           string    `json:"id"`
	ProductIDs   []string  `json:"productIds"`
	ProductCodes []string  `json:"productCodes"`
	Billing      Billing   `json:"billing"`
	Shipping     Shipping  `json:"shipping"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	Email      string   `json:"email"`
	ProductIDs []string `json:"productIds"`
	Payment    string   `json:"payment"`
	Shipping   Shipping `json:"shipping"`
}

// Validate checks the request fields.
func (r *OrderRequest) Validate() error {
	var errs []error
	if _, err := mail.ParseAddress(r.Email); err != nil {
		errs = append(errs, fmt.Errorf("email %q is not valid", r.Email))
	}
	if len(r.ProductIDs) == 0 {
		errs = append(errs, errors.New("productIds must not be empty"))
	}
	if !oneOf(r.Payment, PaymentCash, PaymentDebitCard, PaymentCreditCard) {
		errs = append(errs, fmt.Errorf("payment %q is not supported", r.Payment))
	}
	if !oneOf(r.Shipping.Type, ShippingUrgent, ShippingEconomic) {
		errs = append(errs, fmt.Errorf("shipping type %q is not supported", r.Shipping.Type))
	}
	if !oneOf(r.Shipping.Carrier, CarrierCorreios, CarrierFedex) {
		errs = append(errs, fmt.Errorf("carrier %q is not supported", r.Shipping.Carrier))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidOrder}, errs...)...)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ProductRef is the part of a catalog product an order needs.
type ProductRef struct {
	ID    string
	Code  string
	Price float64
}

// OrderEvent is the payload of an order event.
type OrderEvent struct {
	Email        string   `json:"email"`
	OrderID      string   `json:"orderId"`
	ProductCodes []string `json:"productCodes"`
	BillingTotal float64  `json:"billingTotal"`
	RequestID    string   `json:"requestId"`
}

// Envelope wraps an encoded OrderEvent with its type.
type Envelope struct {
	EventType string `json:"eventType"`
	Data      string `json:"data"`
}

// NewOrderEvent describes o.
func NewOrderEvent(o *Order, requestID string) *OrderEvent {
	return &OrderEvent{
		Email:        o.Email,
		OrderID:      o.ID,
		ProductCodes: o.ProductCodes,
		BillingTotal: o.Billing.TotalPrice,
		RequestID:    requestID,
	}
}

// EventView is one entry of GET /orders/events.
type EventView struct {
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	EventType    string    `json:"eventType"`
	RequestID    string    `json:"requestId"`
	OrderID      string    `json:"orderId"`
	ProductCodes []string  `json:"productCodes"`
}
