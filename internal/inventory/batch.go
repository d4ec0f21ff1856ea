// Package inventory owns variant stock. Stock only moves through per-sku
// conditional increments and decrements, never through an overwrite.
package inventory

import (
	"sort"
	"strings"
)

// Batch accumulates stock deltas keyed by sku. Negative deltas take stock,
// positive deltas return it.
type Batch struct {
	deltas map[string]int64
}

func NewBatch() *Batch {
	return &Batch{deltas: map[string]int64{}}
}

// Take records qty units leaving stock for sku.
func (b *Batch) Take(sku string, qty int64) {
	b.add(sku, -qty)
}

// Return records qty units coming back to stock for sku.
func (b *Batch) Return(sku string, qty int64) {
	b.add(sku, qty)
}

func (b *Batch) add(sku string, delta int64) {
	sku = strings.TrimSpace(sku)
	if sku == "" || delta == 0 {
		return
	}
	if b.deltas == nil {
		b.deltas = map[string]int64{}
	}
	b.deltas[sku] += delta
	if b.deltas[sku] == 0 {
		delete(b.deltas, sku)
	}
}

// Delta is the net change recorded for sku.
func (b *Batch) Delta(sku string) int64 {
	if b == nil {
		return 0
	}
	return b.deltas[sku]
}

// SKUs returns the touched skus in a stable order. Applying updates in this
// order keeps concurrent batches from deadlocking on each other's rows.
func (b *Batch) SKUs() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.deltas))
	for sku := range b.deltas {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.deltas)
}

// Inverse undoes b.
func (b *Batch) Inverse() *Batch {
	out := NewBatch()
	if b == nil {
		return out
	}
	for sku, delta := range b.deltas {
		out.deltas[sku] = -delta
	}
	return out
}

// Deltas copies the batch for event payloads.
func (b *Batch) Deltas() map[string]int64 {
	out := make(map[string]int64, b.Len())
	if b == nil {
		return out
	}
	for sku, delta := range b.deltas {
		out[sku] = delta
	}
	return out
}
