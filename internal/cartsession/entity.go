package cartsession

import "github.com/your-org/vineyard-shop/internal/domain/vat"

// CartLine is one product in the cart. The line total is always derived.
type CartLine struct {
	ID                  string `json:"id"`
	ProductID           string `json:"product_id"`
	Quantity            int    `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unit_price_minor_units"`
}

// LineTotalMinorUnits returns quantity * unit price
func (l CartLine) LineTotalMinorUnits() int64 {
	return int64(l.Quantity) * l.UnitPriceMinorUnits
}

// Snapshot is a reconciled, read-only view of the cart. Build it with
// NewSnapshot so the summary fields always match the lines.
type Snapshot struct {
	Lines              []CartLine `json:"lines"`
	ItemCount          int        `json:"item_count"`
	TotalQuantity      int        `json:"total_quantity"`
	SubtotalMinorUnits int64      `json:"subtotal_minor_units"`
}

// NewSnapshot copies the lines, drops deleted (zero quantity) ones and
// computes the summary.
func NewSnapshot(lines []CartLine) Snapshot {
	snap := Snapshot{Lines: make([]CartLine, 0, len(lines))}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		snap.Lines = append(snap.Lines, line)
		snap.ItemCount++
		snap.TotalQuantity += line.Quantity
		snap.SubtotalMinorUnits += line.LineTotalMinorUnits()
	}
	return snap
}

// Line returns the line with the given id
func (s Snapshot) Line(lineID string) (CartLine, bool) {
	if i := indexOfLine(s.Lines, lineID); i >= 0 {
		return s.Lines[i], true
	}
	return CartLine{}, false
}

// PendingMutation is an optimistic quantity change not yet confirmed by the
// store. IssuedAt comes from the session's logical clock.
type PendingMutation struct {
	LineID         string `json:"line_id"`
	TargetQuantity int    `json:"target_quantity"`
	IssuedAt       int64  `json:"issued_at"`
}

// QuantityUpdate is one entry of a batched quantity write
type QuantityUpdate struct {
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
}

// Destination describes where and to whom the cart would be sold; it feeds
// the VAT computation shown alongside the cart.
type Destination struct {
	CountryCode              string
	CustomerType             vat.CustomerType
	BusinessVATNumber        string
	ShippingAmountMinorUnits int64
}

// Summary is what a UI renders: the cart, its VAT-inclusive total (when a
// destination is known) and the session state.
type Summary struct {
	Snapshot Snapshot    `json:"snapshot"`
	Vat      *vat.Result `json:"vat,omitempty"`
	State    State       `json:"state"`
}

func cloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

func indexOfLine(lines []CartLine, lineID string) int {
	for i := range lines {
		if lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func indexOfProduct(lines []CartLine, productID string) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func removeLineAt(lines []CartLine, i int) []CartLine {
	out := make([]CartLine, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}

// upsertLine replaces the line with the same id or appends it. Lines with a
// zero quantity are removed.
func upsertLine(lines []CartLine, line CartLine) []CartLine {
	i := indexOfLine(lines, line.ID)
	switch {
	case i < 0 && line.Quantity > 0:
		return append(lines, line)
	case i >= 0 && line.Quantity <= 0:
		return removeLineAt(lines, i)
	case i >= 0:
		lines[i] = line
	}
	return lines
}
