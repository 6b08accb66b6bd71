package model

import "time"

// Transaction-log entry types, one step in a payment protocol (spec §3).
const (
	TxCreate  = "CREATE"
	TxCheck   = "CHECK"
	TxPrepare = "PREPARE"
	TxComplete = "COMPLETE"
	TxConfirm = "CONFIRM"
	TxCancel  = "CANCEL"
	TxRefund  = "REFUND"
)

// Transaction-log statuses.
const (
	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"
)

// TxLogEntry records one step of a payment protocol. Invariant: the
// IdempotencyKey is unique per (provider, operation, external-id), which
// is how duplicate webhook deliveries are detected (spec P6).
//
// Fields:
//  ID             – internal id.
//  PaymentID      – the payment this step belongs to.
//  Provider       – ProviderPayme or ProviderClick.
//  Type           – one of the Tx* constants.
//  Status         – one of TxStatusPending/Success/Failed.
//  ExternalID     – the gateway transaction id at the time of this step.
//  RequestPayload – raw inbound request body, stored for audit/replay.
//  ErrorCode      – provider-specific numeric/string error code, if any.
//  ErrorMessage   – human-readable error detail, if any.
//  IdempotencyKey – unique per (provider, operation, external-id).
type TxLogEntry struct {
	ID             string    // tx_log.id
	PaymentID      string    // tx_log.payment_id
	Provider       string    // tx_log.provider
	Type           string    // tx_log.type
	Status         string    // tx_log.status
	ExternalID     string    // tx_log.external_id
	RequestPayload string    // tx_log.request_payload
	ErrorCode      string    // tx_log.error_code
	ErrorMessage   string    // tx_log.error_message
	IdempotencyKey string    // tx_log.idempotency_key (unique)
	CreatedAt      time.Time // tx_log.created_at
}

// IdempotencyKey builds the unique key for a (provider, operation,
// external-id) triple, as required by spec §3 and §6's idempotency
// guarantee (P6).
func IdempotencyKey(provider, operation, externalID string) string {
	return provider + ":" + operation + ":" + externalID
}
