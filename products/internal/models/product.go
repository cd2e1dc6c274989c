// Package models defines the product catalog types.
package models

import (
	"errors"
	"strings"
	"time"
)

// Product event types.
const (
	EventProductCreated = "PRODUCT_CREATED"
	EventProductUpdated = "PRODUCT_UPDATED"
	EventProductDeleted = "PRODUCT_DELETED"
)

// ErrInvalidProduct wraps product validation failures.
var ErrInvalidProduct = errors.New("invalid product")

// Product is a catalog entry.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"productName"`
	Code      string    `json:"code"`
	Price     float64   `json:"price"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProductInput is the body of create and update requests.
type ProductInput struct {
	Name  string  `json:"productName"`
	Code  string  `json:"code"`
	Price float64 `json:"price"`
	Model string  `json:"model"`
}

// Validate checks the required fields.
func (in *ProductInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, errors.New("productName is required"))
	}
	if strings.TrimSpace(in.Code) == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if in.Price < 0 {
		errs = append(errs, errors.New("price must not be negative"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidProduct}, errs...)...)
	}
	return nil
}

// Apply copies the input onto p.
func (in *ProductInput) Apply(p *Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Code = strings.TrimSpace(in.Code)
	p.Price = in.Price
	p.Model = in.Model
}

// ProductEvent announces a product mutation.
type ProductEvent struct {
	RequestID    string  `json:"requestId"`
	EventType    string  `json:"eventType"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	Email        string  `json:"email"`
}

// NewProductEvent describes eventType applied to p.
func NewProductEvent(p *Product, eventType, email, requestID string) *ProductEvent {
	return &ProductEvent{
		RequestID:    requestID,
		EventType:    eventType,
		ProductID:    p.ID,
		ProductCode:  p.Code,
		ProductPrice: p.Price,
		Email:        email,
	}
}
