package transactions

// Classify returns the effect of a settled transaction on userID's buckets.
// The destination always books income; the origin books outflow, or expense for EXPENSE kinds.
func Classify(t Transaction, userID int64) Totals {
	out := ZeroTotals()
	if t.DestinationID == userID {
		out.Income = out.Income.Add(t.Amount)
	}
	if t.OriginID == userID {
		if t.Kind == KindExpense {
			out.Expense = out.Expense.Add(t.Amount)
		} else {
			out.Outflow = out.Outflow.Add(t.Amount)
		}
	}
	return out
}

// Sum folds the settled, active transactions of txns into userID's totals.
func Sum(txns []Transaction, userID int64) Totals {
	total := ZeroTotals()
	for _, t := range txns {
		if !t.Active || t.State() != StateSettled {
			continue
		}
		c := Classify(t, userID)
		total.Income = total.Income.Add(c.Income)
		total.Outflow = total.Outflow.Add(c.Outflow)
		total.Expense = total.Expense.Add(c.Expense)
	}
	return total
}
