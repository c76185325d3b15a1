package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/bistro/internal/domain/money"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
)

// Amounts are encoded as decimal strings with two fractional digits.
func moneyField(e *jx.Encoder, name string, m money.Money) {
	e.Field(name, func(e *jx.Encoder) { e.Str(m.String()) })
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func optStrField(e *jx.Encoder, name, v string) {
	if v != "" {
		strField(e, name, v)
	}
}

func optIntField(e *jx.Encoder, name string, v int) {
	if v != 0 {
		e.Field(name, func(e *jx.Encoder) { e.Int(v) })
	}
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	strField(e, name, t.UTC().Format(time.RFC3339))
}

func strArr(e *jx.Encoder, vs []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, v := range vs {
			e.Str(v)
		}
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Snapshot) {
	base := h.imageBaseURL
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "name", p.Name)
		strField(e, "category", p.Category)
		moneyField(e, "price", p.UnitPrice)
		strField(e, "pricingMode", string(p.Mode))
		e.Field("modifiers", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				if len(p.Modifiers.Vegetables) > 0 {
					e.Field("vegetables", func(e *jx.Encoder) { strArr(e, p.Modifiers.Vegetables) })
				}
				if len(p.Modifiers.Additions) > 0 {
					e.Field("additions", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, a := range p.Modifiers.Additions {
								e.Obj(func(e *jx.Encoder) {
									strField(e, "name", a.Name)
									moneyField(e, "price", a.Price)
								})
							}
						})
					})
				}
				if len(p.Modifiers.WeightedAdditions) > 0 {
					e.Field("weightedAdditions", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, a := range p.Modifiers.WeightedAdditions {
								e.Obj(func(e *jx.Encoder) {
									strField(e, "name", a.Name)
									moneyField(e, "pricePer50g", a.PricePer50g)
									moneyField(e, "pricePer100g", a.PricePer100g)
								})
							}
						})
					})
				}
			})
		})
		e.Field("image", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				optStrField(e, "thumbnail", imageURL(base, p.Image.Thumbnail))
				optStrField(e, "mobile", imageURL(base, p.Image.Mobile))
				optStrField(e, "tablet", imageURL(base, p.Image.Tablet))
				optStrField(e, "desktop", imageURL(base, p.Image.Desktop))
			})
		})
	})
}

func imageURL(base, path string) string {
	if path == "" {
		return ""
	}
	return base + path
}

func encodeLine(e *jx.Encoder, l pricing.Line) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "productId", l.ProductID)
		strField(e, "name", l.Name)
		strField(e, "category", l.Category)
		strField(e, "pricingMode", string(l.Mode))
		moneyField(e, "unitPrice", l.UnitPrice)
		optIntField(e, "quantity", l.Quantity)
		optIntField(e, "weightGrams", l.WeightGrams)
		if len(l.Vegetables) > 0 {
			e.Field("vegetables", func(e *jx.Encoder) { strArr(e, l.Vegetables) })
		}
		if len(l.Additions) > 0 {
			e.Field("additions", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, a := range l.Additions {
						e.Obj(func(e *jx.Encoder) {
							strField(e, "label", a.Label)
							optIntField(e, "grams", a.Grams)
							moneyField(e, "unitPrice", a.UnitPrice)
						})
					}
				})
			})
		}
		optStrField(e, "comment", l.Comment)
		moneyField(e, "base", l.Base)
		moneyField(e, "additionsTotal", l.AdditionsTotal)
		moneyField(e, "listTotal", l.ListTotal)
		moneyField(e, "total", l.Total)
		optStrField(e, "reward", string(l.Reward))
	})
}

func encodeLines(e *jx.Encoder, lines []pricing.Line) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			encodeLine(e, l)
		}
	})
}

func encodeBreakdown(e *jx.Encoder, b *pricing.Breakdown) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, b.Lines) })
		strField(e, "deliveryOption", string(b.DeliveryOption))
		moneyField(e, "subtotal", b.Subtotal)
		moneyField(e, "discount", b.Discount)
		moneyField(e, "deliveryFee", b.DeliveryFee)
		moneyField(e, "total", b.Total)
		optStrField(e, "couponCode", b.CouponCode)
		if b.Reward != nil {
			e.Field("reward", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "kind", string(b.Reward.Kind))
					e.Field("lineIndex", func(e *jx.Encoder) { e.Int(b.Reward.LineIndex) })
					e.Field("applied", func(e *jx.Encoder) { e.Bool(b.RewardApplied) })
				})
			})
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		e.Field("number", func(e *jx.Encoder) { e.Int64(o.Number) })
		strField(e, "businessDate", o.BusinessDate)
		strField(e, "clientOrderId", o.ClientOrderID)
		optStrField(e, "customerId", o.CustomerID)
		if o.Guest != nil {
			e.Field("guest", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "name", o.Guest.Name)
					strField(e, "phone", o.Guest.Phone)
				})
			})
		}
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, o.Lines) })
		strField(e, "deliveryOption", string(o.DeliveryOption))
		optStrField(e, "address", o.Address)
		moneyField(e, "subtotal", o.Subtotal)
		moneyField(e, "discount", o.Discount)
		moneyField(e, "deliveryFee", o.DeliveryFee)
		moneyField(e, "total", o.Total)
		optStrField(e, "couponCode", o.CouponCode)
		optStrField(e, "reward", string(o.Reward))
		strField(e, "status", string(o.Status))
		strField(e, "paymentStatus", string(o.PaymentStatus))
		e.Field("payment", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				optStrField(e, "method", o.Payment.Method)
				optStrField(e, "transactionId", o.Payment.TransactionID)
				optStrField(e, "cardBrand", o.Payment.CardBrand)
				optStrField(e, "last4", o.Payment.Last4)
			})
		})
		e.Field("history", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range o.History {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "from", string(c.From))
						strField(e, "to", string(c.To))
						timeField(e, "at", c.At)
					})
				}
			})
		})
		timeField(e, "createdAt", o.CreatedAt)
		timeField(e, "updatedAt", o.UpdatedAt)
		if o.PaidAt != nil {
			timeField(e, "paidAt", *o.PaidAt)
		}
	})
}
