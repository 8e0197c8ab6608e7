package clinic

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Ledger is the derived money position of one patient.
type Ledger struct {
	PatientID string
	TotalCost decimal.Decimal
	TotalPaid decimal.Decimal
	// Balance is TotalCost minus TotalPaid and may be negative when the
	// patient has paid in advance.
	Balance decimal.Decimal
}

// DisplayBalance is the balance clamped at zero for screens that show what
// is still owed.
func (l Ledger) DisplayBalance() decimal.Decimal {
	if l.Balance.IsNegative() {
		return decimal.Zero
	}
	return l.Balance
}

// InCredit reports whether the patient has paid more than was billed.
func (l Ledger) InCredit() bool { return l.Balance.IsNegative() }

func (l Ledger) Settled() bool { return l.Balance.IsZero() }

func (l Ledger) Owes() bool { return l.Balance.IsPositive() }

func (l Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PatientID      string `json:"patient_id"`
		TotalCost      string `json:"total_cost"`
		TotalPaid      string `json:"total_paid"`
		Balance        string `json:"balance"`
		DisplayBalance string `json:"display_balance"`
	}{
		PatientID:      l.PatientID,
		TotalCost:      Money(l.TotalCost),
		TotalPaid:      Money(l.TotalPaid),
		Balance:        Money(l.Balance),
		DisplayBalance: Money(l.DisplayBalance()),
	})
}

// Money renders an amount with two decimal places.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ComputeLedger derives the ledger of one patient. Records belonging to other
// patients are ignored, so callers may pass clinic-wide collections.
func ComputeLedger(patientID string, history []HistoryRecord, payments []Payment) Ledger {
	l := Ledger{PatientID: patientID, TotalCost: decimal.Zero, TotalPaid: decimal.Zero}
	for _, h := range history {
		if h.PatientID == patientID {
			l.TotalCost = l.TotalCost.Add(h.TotalCost)
		}
	}
	for _, p := range payments {
		if p.PatientID == patientID {
			l.TotalPaid = l.TotalPaid.Add(p.Amount)
		}
	}
	l.Balance = l.TotalCost.Sub(l.TotalPaid)
	return l
}

// LedgersFor derives ledgers for many patients in a single pass over the
// records. Output order follows patientIDs. Records for patients not in the
// list do not contribute.
func LedgersFor(patientIDs []string, history []HistoryRecord, payments []Payment) []Ledger {
	idx := make(map[string]int, len(patientIDs))
	out := make([]Ledger, len(patientIDs))
	for i, id := range patientIDs {
		out[i] = Ledger{PatientID: id, TotalCost: decimal.Zero, TotalPaid: decimal.Zero}
		if _, dup := idx[id]; !dup {
			idx[id] = i
		}
	}
	for _, h := range history {
		if i, ok := idx[h.PatientID]; ok {
			out[i].TotalCost = out[i].TotalCost.Add(h.TotalCost)
		}
	}
	for _, p := range payments {
		if i, ok := idx[p.PatientID]; ok {
			out[i].TotalPaid = out[i].TotalPaid.Add(p.Amount)
		}
	}
	for i := range out {
		if j := idx[out[i].PatientID]; j != i {
			// duplicate id in the input: mirror the first occurrence
			out[i] = out[j]
			continue
		}
		out[i].Balance = out[i].TotalCost.Sub(out[i].TotalPaid)
	}
	return out
}

// PriceProcedures sums current catalog prices for a new history record.
// Identifiers missing from the catalog contribute nothing and are returned
// so the caller can report them.
func PriceProcedures(procedureIDs []string, catalog map[string]Procedure) (decimal.Decimal, []string) {
	total := decimal.Zero
	var missing []string
	for _, id := range procedureIDs {
		p, ok := catalog[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		total = total.Add(p.Price)
	}
	return total, missing
}
