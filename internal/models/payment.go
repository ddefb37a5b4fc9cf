package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentLineItem is one charged line sent to the payment provider. The
// unit price carries the marketplace fee.
type PaymentLineItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

// PaymentRequest is the payment initiation payload built by checkout.
// ExternalReference is the checkout order ID, used to map the provider
// callback back to the pending order.
type PaymentRequest struct {
	ExternalReference uuid.UUID
	BuyerEmail        string
	BuyerName         string
	EventID           uuid.UUID
	Items             []PaymentLineItem
	ServiceFee        decimal.Decimal
	RRPPCode          *string
	Fingerprint       string
}

// PaymentResultStatus is the decoded provider callback status. Only the
// known values are representable; anything else decodes to
// PaymentResultUnknown and is rejected at the boundary.
type PaymentResultStatus string

const (
	PaymentResultApproved PaymentResultStatus = "approved"
	PaymentResultRejected PaymentResultStatus = "rejected"
	PaymentResultPending  PaymentResultStatus = "pending"
	PaymentResultUnknown  PaymentResultStatus = "unknown"
)

// PaymentResult is the normalized reconciliation callback.
type PaymentResult struct {
	PaymentID         string
	Status            PaymentResultStatus
	ExternalReference uuid.UUID
}
