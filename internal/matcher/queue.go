package matcher

import (
	"container/heap"

	"golang-reconciliation-engine/internal/models"
)

// AmountQueue yields transactions in batch-processing order: largest |amount|
// first, then earliest date, then lowest ID. Larger transactions are less
// ambiguous, so they claim documents before the smaller, more numerous ones.
type AmountQueue struct {
	items txHeap
}

// NewAmountQueue builds a queue over txs. The slice itself is not modified.
func NewAmountQueue(txs []*models.Transaction) *AmountQueue {
	items := make(txHeap, len(txs))
	copy(items, txs)
	heap.Init(&items)
	return &AmountQueue{items: items}
}

// Len returns the number of transactions still queued
func (q *AmountQueue) Len() int {
	return q.items.Len()
}

// Pop removes and returns the next transaction, or nil when empty
func (q *AmountQueue) Pop() *models.Transaction {
	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*models.Transaction)
}

// Push adds a transaction, keeping queue order
func (q *AmountQueue) Push(tx *models.Transaction) {
	heap.Push(&q.items, tx)
}

// Drain pops every remaining transaction in order
func (q *AmountQueue) Drain() []*models.Transaction {
	out := make([]*models.Transaction, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, q.Pop())
	}
	return out
}

// processesBefore is the queue's ordering contract
func processesBefore(a, b *models.Transaction) bool {
	if aa, ba := a.AbsAmount(), b.AbsAmount(); aa != ba {
		return aa > ba
	}
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}

type txHeap []*models.Transaction

func (h txHeap) Len() int           { return len(h) }
func (h txHeap) Less(i, j int) bool { return processesBefore(h[i], h[j]) }
func (h txHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *txHeap) Push(x any) {
	*h = append(*h, x.(*models.Transaction))
}

func (h *txHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
