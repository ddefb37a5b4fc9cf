package payments

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jamm-events/backend/internal/models"
)

// ErrUnknownStatus is returned when the provider reports a status
// outside the known set. Unknown statuses are rejected at the boundary
// instead of being treated as a failure or success.
var ErrUnknownStatus = errors.New("unknown payment status")

// statusMap normalizes the provider's status vocabulary to the three
// states reconciliation acts on.
var statusMap = map[string]models.PaymentResultStatus{
	"approved":     models.PaymentResultApproved,
	"accredited":   models.PaymentResultApproved,
	"rejected":     models.PaymentResultRejected,
	"cancelled":    models.PaymentResultRejected,
	"refunded":     models.PaymentResultRejected,
	"charged_back": models.PaymentResultRejected,
	"pending":      models.PaymentResultPending,
	"in_process":   models.PaymentResultPending,
	"authorized":   models.PaymentResultPending,
}

// DecodeStatus maps a raw provider status string to the known set.
func DecodeStatus(raw string) (models.PaymentResultStatus, error) {
	if s, ok := statusMap[raw]; ok {
		return s, nil
	}
	return models.PaymentResultUnknown, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// DecodeResult builds a normalized PaymentResult from raw callback
// fields, validating the status and the external reference.
func DecodeResult(paymentID, rawStatus, externalReference string) (*models.PaymentResult, error) {
	if paymentID == "" {
		return nil, errors.New("missing payment id")
	}
	status, err := DecodeStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	ref, err := uuid.Parse(externalReference)
	if err != nil {
		return nil, fmt.Errorf("invalid external reference %q: %w", externalReference, err)
	}
	return &models.PaymentResult{
		PaymentID:         paymentID,
		Status:            status,
		ExternalReference: ref,
	}, nil
}
