package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SlotHoa is the membership-fee slot carried alongside the twelve months.
const SlotHoa = "Hoa"

// MonthSlots lists the monthly dues slots in calendar order.
var MonthSlots = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// SlotNames lists every payable slot of a member row: twelve months plus Hoa.
var SlotNames = append(append([]string{}, MonthSlots...), SlotHoa)

// Slot is one payable cell of the grid. Amount is meaningful only while Paid
// is true; an unpaid slot carries Amount 0.
type Slot struct {
	Paid   bool    `json:"paid"`
	Amount float64 `json:"amount"`
}

// MemberRow maps slot name to Slot. A normalized row has exactly the
// thirteen recognized slot keys.
type MemberRow map[string]Slot

// Record maps member name to their row for one period.
type Record map[string]MemberRow

// RateTable maps each of the thirteen slot names to the standard amount
// assigned when that slot is marked paid.
type RateTable map[string]float64

// Document is the per-period ledger document held by the store. The store is
// last-write-wins on the whole document; concurrent committers can overwrite
// each other and no version check is performed.
type Document struct {
	Period        string    `json:"period"`
	Record        Record    `json:"record"`
	Rates         RateTable `json:"rates"`
	TotalDuesPaid float64   `json:"total_dues_paid"`
	TotalFeePaid  float64   `json:"total_fee_paid"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewMemberRow returns a row with all thirteen slots unpaid.
func NewMemberRow() MemberRow {
	row := make(MemberRow, len(SlotNames))
	for _, name := range SlotNames {
		row[name] = Slot{}
	}
	return row
}

// NewRateTable returns a table with every slot rate at zero.
func NewRateTable() RateTable {
	rates := make(RateTable, len(SlotNames))
	for _, name := range SlotNames {
		rates[name] = 0
	}
	return rates
}

// NewDocument returns an empty normalized document for a period.
func NewDocument(period string) *Document {
	return &Document{
		Period: period,
		Record: Record{},
		Rates:  NewRateTable(),
	}
}

// IsSlotName reports whether name is one of the thirteen recognized slots.
func IsSlotName(name string) bool {
	for _, s := range SlotNames {
		if s == name {
			return true
		}
	}
	return false
}

// IsMonthSlot reports whether name is one of the twelve monthly slots.
func IsMonthSlot(name string) bool {
	return name != SlotHoa && IsSlotName(name)
}

// ValidAmount reports whether v is a finite number greater or equal to zero.
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Normalize repairs a document loaded from the store: every member row gets
// exactly the recognized slot keys (missing filled unpaid, unknown dropped),
// unpaid slots are forced to amount zero, and the rate table covers every
// slot. Stored documents are not trusted to have the full shape.
func (d *Document) Normalize() {
	if d.Record == nil {
		d.Record = Record{}
	}
	for member, row := range d.Record {
		normalized := make(MemberRow, len(SlotNames))
		for _, name := range SlotNames {
			slot := row[name]
			if !slot.Paid {
				slot.Amount = 0
			}
			normalized[name] = slot
		}
		d.Record[member] = normalized
	}
	if d.Rates == nil {
		d.Rates = RateTable{}
	}
	rates := make(RateTable, len(SlotNames))
	for _, name := range SlotNames {
		rates[name] = d.Rates[name]
	}
	d.Rates = rates
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Period:        d.Period,
		Record:        d.Record.Clone(),
		Rates:         d.Rates.Clone(),
		TotalDuesPaid: d.TotalDuesPaid,
		TotalFeePaid:  d.TotalFeePaid,
		UpdatedAt:     d.UpdatedAt,
	}
	return out
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for member, row := range r {
		copied := make(MemberRow, len(row))
		for name, slot := range row {
			copied[name] = slot
		}
		out[member] = copied
	}
	return out
}

// Clone copies the rate table.
func (t RateTable) Clone() RateTable {
	if t == nil {
		return nil
	}
	out := make(RateTable, len(t))
	for name, amount := range t {
		out[name] = amount
	}
	return out
}

// Totals holds the running sums shown above the grid.
type Totals struct {
	TotalDuesPaid float64 `json:"total_dues_paid"`
	TotalFeePaid  float64 `json:"total_fee_paid"`
}

// ComputeTotals folds over every member row: paid monthly amounts into
// TotalDuesPaid, the paid Hoa amount into TotalFeePaid. Pure, O(members x 13).
func (r Record) ComputeTotals() Totals {
	var t Totals
	for _, row := range r {
		for name, slot := range row {
			if !slot.Paid {
				continue
			}
			if name == SlotHoa {
				t.TotalFeePaid += slot.Amount
			} else {
				t.TotalDuesPaid += slot.Amount
			}
		}
	}
	return t
}

// CellID identifies one member/slot cell in a selection set.
func CellID(member, slot string) string {
	return member + "#" + slot
}

// ParseCellID splits a cell identifier back into member and slot.
func ParseCellID(id string) (member, slot string, err error) {
	idx := strings.LastIndex(id, "#")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", fmt.Errorf("malformed cell id %q", id)
	}
	return id[:idx], id[idx+1:], nil
}
