package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across services.
const (
	FieldService        = "service"
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldConnectionID   = "connection_id"
	FieldTransactionKey = "transaction_key"
	FieldTxStatus       = "tx_status"
	FieldObjectKey      = "object_key"
	FieldSubject        = "subject"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatus         = "status"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// ConnectionID returns a slog attribute for a socket connection id.
func ConnectionID(id string) slog.Attr {
	return slog.String(FieldConnectionID, id)
}

// TransactionKey returns a slog attribute for an upload transaction key.
func TransactionKey(key string) slog.Attr {
	return slog.String(FieldTransactionKey, key)
}

// TxStatus returns a slog attribute for a transaction status.
func TxStatus[S ~string](s S) slog.Attr {
	return slog.String(FieldTxStatus, string(s))
}

// ObjectKey returns a slog attribute for a storage object key.
func ObjectKey(key string) slog.Attr {
	return slog.String(FieldObjectKey, key)
}

// Subject returns a slog attribute for a messaging subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
