package entity

import "github.com/shopspring/decimal"

// Totals is the computed summary of a measurement.
type Totals struct {
	GrossMonthlyValue decimal.Decimal `json:"gross_monthly_value"`
	AmendmentsValue   decimal.Decimal `json:"amendments_value"`
	ExtraCostsValue   decimal.Decimal `json:"extra_costs_value"`
	DiscountsValue    decimal.Decimal `json:"discounts_value"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
}

// Recalculate derives the summary totals from a measurement's line items.
//
// Line totals are recomputed from their factors, so a stale LineTotal on an
// item never leaks into the result. Addition amendments are summed with their
// sign into AmendmentsValue; discount amendments add their magnitude to
// DiscountsValue.
func Recalculate(items LineItems) Totals {
	gross := decimal.Zero
	for _, rc := range items.RecurringCosts {
		gross = gross.Add(rc.Total())
	}

	extra := decimal.Zero
	for _, ot := range items.Overtime {
		extra = extra.Add(ot.Total())
	}
	for _, s := range items.AdditionalServices {
		extra = extra.Add(s.Total())
	}

	amendments := decimal.Zero
	discounts := decimal.Zero
	for _, a := range items.Amendments {
		if a.Kind == AmendmentDiscount {
			discounts = discounts.Add(RoundMoney(a.Value.Abs()))
			continue
		}
		amendments = amendments.Add(RoundMoney(a.Value))
	}

	return NewTotals(gross, amendments, extra, discounts)
}

// NewTotals rounds the four subtotals and derives the grand total.
func NewTotals(gross, amendments, extra, discounts decimal.Decimal) Totals {
	t := Totals{
		GrossMonthlyValue: RoundMoney(gross),
		AmendmentsValue:   RoundMoney(amendments),
		ExtraCostsValue:   RoundMoney(extra),
		DiscountsValue:    RoundMoney(discounts),
	}
	t.GrandTotal = t.GrossMonthlyValue.
		Add(t.AmendmentsValue).
		Add(t.ExtraCostsValue).
		Sub(t.DiscountsValue)
	return t
}

// Validate rejects totals that cannot be stored.
func (t Totals) Validate() error {
	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"gross_monthly_value", t.GrossMonthlyValue},
		{"amendments_value", t.AmendmentsValue},
		{"extra_costs_value", t.ExtraCostsValue},
		{"discounts_value", t.DiscountsValue},
		{"grand_total", t.GrandTotal},
	}
	for _, c := range checks {
		if err := CheckMoney(c.field, c.value); err != nil {
			return err
		}
	}
	return nil
}

// Equal compares totals by value.
func (t Totals) Equal(o Totals) bool {
	return t.GrossMonthlyValue.Equal(o.GrossMonthlyValue) &&
		t.AmendmentsValue.Equal(o.AmendmentsValue) &&
		t.ExtraCostsValue.Equal(o.ExtraCostsValue) &&
		t.DiscountsValue.Equal(o.DiscountsValue) &&
		t.GrandTotal.Equal(o.GrandTotal)
}
