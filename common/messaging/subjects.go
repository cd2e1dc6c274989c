package messaging

import "strings"

// Subject constants for the ecommerce-cx message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// SubjectStorageObjectsCompleted carries S3-shaped "object created" notifications.
	SubjectStorageObjectsCompleted = "storage.objects.completed"

	// SubjectInvoicesDLQPrefix prefixes dead-lettered storage events (append .<reason>).
	SubjectInvoicesDLQPrefix = "invoices.dlq"

	// SubjectConnectionPushPattern matches every connection push subject.
	SubjectConnectionPushPattern = "invoices.connections.*.push"

	// SubjectProductEventsPrefix prefixes product events (append .<EVENT_TYPE>).
	SubjectProductEventsPrefix = "products.events"

	// SubjectOrderEventsPrefix prefixes order events (append .<EVENT_TYPE>).
	SubjectOrderEventsPrefix = "orders.events"
)

// Durable consumer names. Instances sharing a name split the messages.
const (
	QueueProductEvents = "product-events"
	QueueOrderEvents   = "order-events"
	QueueOrderEmails   = "order-emails"
)

// ConnectionPushSubject returns the push subject for one socket connection.
// Example: invoices.connections.abc123.push
func ConnectionPushSubject(connectionID string) string {
	return "invoices.connections." + sanitizeToken(connectionID) + ".push"
}

// ConnectionIDFromPushSubject extracts the connection id from a push subject.
func ConnectionIDFromPushSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != "invoices" || parts[1] != "connections" || parts[3] != "push" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// InvoicesDLQSubject returns the DLQ subject for a failure reason.
func InvoicesDLQSubject(reason string) string {
	return SubjectInvoicesDLQPrefix + "." + sanitizeToken(reason)
}

// ProductEventSubject returns the subject for a product event type.
func ProductEventSubject(eventType string) string {
	return SubjectProductEventsPrefix + "." + sanitizeToken(eventType)
}

// OrderEventSubject returns the subject for an order event type.
func OrderEventSubject(eventType string) string {
	return SubjectOrderEventsPrefix + "." + sanitizeToken(eventType)
}

// sanitizeToken replaces characters NATS reserves inside a subject token.
func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
