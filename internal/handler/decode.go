package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
)

const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest("read body: %s", err)
	}
	return body, nil
}

// skipNull consumes a JSON null and reports whether it was one.
func skipNull(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

func decodeStr(d *jx.Decoder, dst *string) error {
	if null, err := skipNull(d); null || err != nil {
		return err
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func decodeInt(d *jx.Decoder, dst *int) error {
	if null, err := skipNull(d); null || err != nil {
		return err
	}
	v, err := d.Int()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func decodeBool(d *jx.Decoder, dst *bool) error {
	if null, err := skipNull(d); null || err != nil {
		return err
	}
	v, err := d.Bool()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func decodeStrs(d *jx.Decoder, dst *[]string) error {
	if null, err := skipNull(d); null || err != nil {
		return err
	}
	return d.Arr(func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = append(*dst, v)
		return nil
	})
}

func decodeAddition(d *jx.Decoder) (pricing.AdditionRequest, error) {
	var a pricing.AdditionRequest
	// A bare string names a fixed addition.
	if d.Next() == jx.String {
		v, err := d.Str()
		a.Name = v
		return a, err
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return decodeStr(d, &a.Name)
		case "grams":
			return decodeInt(d, &a.Grams)
		default:
			return d.Skip()
		}
	})
	return a, err
}

func decodeLine(d *jx.Decoder) (pricing.LineRequest, error) {
	var l pricing.LineRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			return decodeStr(d, &l.ProductID)
		case "quantity":
			return decodeInt(d, &l.Quantity)
		case "weightGrams":
			return decodeInt(d, &l.WeightGrams)
		case "vegetables":
			return decodeStrs(d, &l.Vegetables)
		case "additions":
			if null, err := skipNull(d); null || err != nil {
				return err
			}
			return d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAddition(d)
				if err != nil {
					return err
				}
				l.Additions = append(l.Additions, a)
				return nil
			})
		case "comment":
			return decodeStr(d, &l.Comment)
		default:
			return d.Skip()
		}
	})
	return l, err
}

// decodeQuoteField decodes the fields shared by quote and order requests.
// It reports false for keys it does not know.
func decodeQuoteField(d *jx.Decoder, key string, q *order.QuoteRequest) (bool, error) {
	switch key {
	case "customerId":
		return true, decodeStr(d, &q.CustomerID)
	case "deliveryOption":
		return true, decodeStr(d, &q.DeliveryOption)
	case "couponCode":
		return true, decodeStr(d, &q.CouponCode)
	case "applyReward":
		return true, decodeBool(d, &q.ApplyReward)
	case "lines", "items":
		if null, err := skipNull(d); null || err != nil {
			return true, err
		}
		return true, d.Arr(func(d *jx.Decoder) error {
			l, err := decodeLine(d)
			if err != nil {
				return err
			}
			q.Lines = append(q.Lines, l)
			return nil
		})
	}
	return false, nil
}

func decodeQuoteRequest(body []byte) (order.QuoteRequest, error) {
	var q order.QuoteRequest
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeQuoteField(d, key, &q)
		if ok || err != nil {
			return err
		}
		return d.Skip()
	})
	if err != nil {
		return q, badRequest("decode quote request: %s", err)
	}
	return q, nil
}

func decodePlaceOrderRequest(body []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeQuoteField(d, key, &req.QuoteRequest)
		if ok || err != nil {
			return err
		}
		switch key {
		case "clientOrderId":
			return decodeStr(d, &req.ClientOrderID)
		case "address":
			return decodeStr(d, &req.Address)
		case "paymentMethod":
			return decodeStr(d, &req.PaymentMethod)
		case "guest":
			if null, err := skipNull(d); null || err != nil {
				return err
			}
			req.Guest = &order.Guest{}
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "name":
					return decodeStr(d, &req.Guest.Name)
				case "phone":
					return decodeStr(d, &req.Guest.Phone)
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest("decode order request: %s", err)
	}
	return req, nil
}

func decodeStatusRequest(body []byte) (order.Status, error) {
	var raw string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key == "status" {
			return decodeStr(d, &raw)
		}
		return d.Skip()
	})
	if err != nil {
		return "", badRequest("decode status request: %s", err)
	}
	st, ok := order.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return "", badRequest("unknown status %q", raw)
	}
	return st, nil
}

// decodeWebhookJSON flattens a JSON callback body into string values.
// Numbers keep their literal form and nested values their raw JSON.
func decodeWebhookJSON(body []byte) (map[string]string, error) {
	out := make(map[string]string)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			out[key] = v
			return err
		case jx.Number:
			n, err := d.Num()
			out[key] = n.String()
			return err
		case jx.Bool:
			v, err := d.Bool()
			if v {
				out[key] = "true"
			} else {
				out[key] = "false"
			}
			return err
		case jx.Null:
			return d.Null()
		default:
			raw, err := d.Raw()
			out[key] = raw.String()
			return err
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode webhook json")
	}
	return out, nil
}
