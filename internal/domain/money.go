package domain

import "github.com/shopspring/decimal"

// Totals is the monetary summary of an order.
type Totals struct {
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Tax           decimal.Decimal    `json:"tax"`
	ServiceCharge decimal.Decimal    `json:"service_charge"`
	Tip           decimal.Decimal    `json:"tip"`
	Discount      decimal.Decimal    `json:"discount"`
	Total         decimal.Decimal    `json:"total"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`
}

// CustomizationsTotal sums customization prices.
func CustomizationsTotal(cs []Customization) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Price)
	}
	return total
}

// LineTotal is (price + customizations) * quantity.
func LineTotal(price, customizations decimal.Decimal, quantity int) decimal.Decimal {
	return price.Add(customizations).Mul(decimal.NewFromInt(int64(quantity)))
}

// Reprice recomputes the item's customization and line totals.
func (i *OrderItem) Reprice() {
	i.CustomizationsTotal = CustomizationsTotal(i.Customizations)
	i.LineTotal = LineTotal(i.Price, i.CustomizationsTotal, i.Quantity)
}

// Recalculate derives the order's totals from its items and payments.
//
// Voided items do not count toward the subtotal. Tax and service charge
// are rounded to cents. The tip is the sum of tips on completed payments.
func (o *Order) Recalculate(items []OrderItem, payments []Payment) {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.OrderID != o.ID || it.Voided() {
			continue
		}
		subtotal = subtotal.Add(it.LineTotal)
	}

	tip := decimal.Zero
	paid := decimal.Zero
	for _, p := range payments {
		if p.OrderID != o.ID || p.Status != PaymentCompleted {
			continue
		}
		tip = tip.Add(p.TipAmount)
		paid = paid.Add(p.Collected())
	}

	o.Subtotal = subtotal
	o.Tax = subtotal.Mul(o.TaxRate).Round(2)
	o.ServiceCharge = subtotal.Mul(o.ServiceChargeRate).Round(2)
	o.Tip = tip
	o.Total = o.Subtotal.Add(o.Tax).Add(o.ServiceCharge).Add(o.Tip).Sub(o.Discount)
	o.PaymentStatus = PaymentStatusFor(o.Total, paid)
}

// Totals returns a copy of the order's monetary fields.
func (o Order) Totals() Totals {
	return Totals{
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		ServiceCharge: o.ServiceCharge,
		Tip:           o.Tip,
		Discount:      o.Discount,
		Total:         o.Total,
		PaymentStatus: o.PaymentStatus,
	}
}

// PaymentStatusFor classifies paid against total.
func PaymentStatusFor(total, paid decimal.Decimal) OrderPaymentStatus {
	switch {
	case !paid.IsPositive():
		return OrderUnpaid
	case paid.GreaterThanOrEqual(total):
		return OrderPaid
	default:
		return OrderPartial
	}
}
