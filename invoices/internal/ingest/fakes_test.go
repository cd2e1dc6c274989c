package ingest

import (
	"context"
	"sync"

	"github.com/gagps/ecommerce-cx/invoices/internal/invoice"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
	"github.com/gagps/ecommerce-cx/invoices/internal/transaction"
)

// memTransactions is a Store with atomic conditional transitions. It keeps
// the history of every status each key held.
type memTransactions struct {
	mu        sync.Mutex
	txs       map[string]*transaction.Transaction
	history   map[string][]transaction.Status
	getErr    error
	failTo    transaction.Status
	failErr   error
	onReceive func()
}

func newMemTransactions() *memTransactions {
	return &memTransactions{
		txs:     map[string]*transaction.Transaction{},
		history: map[string][]transaction.Status{},
	}
}

func (m *memTransactions) Get(_ context.Context, key string) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	tx, ok := m.txs[key]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memTransactions) Put(_ context.Context, tx *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.Key]; ok {
		return transaction.ErrAlreadyExists
	}
	cp := *tx
	m.txs[tx.Key] = &cp
	m.history[tx.Key] = append(m.history[tx.Key], tx.Status)
	return nil
}

func (m *memTransactions) Transition(_ context.Context, key string, from, to transaction.Status) error {
	if err := from.CheckTransition(to); err != nil {
		return err
	}
	m.mu.Lock()
	if m.failErr != nil && to == m.failTo {
		m.mu.Unlock()
		return m.failErr
	}
	tx, ok := m.txs[key]
	if !ok {
		m.mu.Unlock()
		return transaction.ErrNotFound
	}
	if tx.Status != from {
		m.mu.Unlock()
		return transaction.ErrStaleTransition
	}
	tx.Status = to
	m.history[key] = append(m.history[key], to)
	hook := m.onReceive
	m.mu.Unlock()

	if to == transaction.StatusReceived && hook != nil {
		hook()
	}
	return nil
}

func (m *memTransactions) DeleteIfStatus(_ context.Context, key string, status transaction.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[key]
	if !ok {
		return transaction.ErrNotFound
	}
	if tx.Status != status {
		return transaction.ErrStaleTransition
	}
	delete(m.txs, key)
	return nil
}

func (m *memTransactions) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, key)
}

func (m *memTransactions) statusHistory(key string) []transaction.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transaction.Status(nil), m.history[key]...)
}

type memInvoices struct {
	mu    sync.Mutex
	items map[string]*invoice.Invoice
	puts  int
	err   error
}

func newMemInvoices() *memInvoices {
	return &memInvoices{items: map[string]*invoice.Invoice{}}
}

func (m *memInvoices) Put(_ context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.puts++
	m.items[inv.PK()+"|"+inv.InvoiceNumber] = inv
	return nil
}

func (m *memInvoices) Get(_ context.Context, customer, number string) (*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[invoice.PartitionKey(customer)+"|"+number]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return inv, nil
}

func (m *memInvoices) ListByCustomer(_ context.Context, customer string) ([]*invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*invoice.Invoice
	for _, inv := range m.items {
		if inv.CustomerName == customer {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvoices) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes int
	readErr error
	delErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return data, nil
}

func (m *memObjects) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return objectstore.ErrObjectExists
	}
	m.objects[key] = data
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	m.deletes++
	delete(m.objects, key)
	return nil
}

func (m *memObjects) exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type push struct {
	ConnectionID string
	Key          string
	Status       transaction.Status
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []push
	result bool
}

func (n *recordingNotifier) Notify(_ context.Context, connectionID, key string, status transaction.Status) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, push{connectionID, key, status})
	return n.result
}

func (n *recordingNotifier) all() []push {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]push(nil), n.pushes...)
}
