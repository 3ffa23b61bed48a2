package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/money"
	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// badRequestError reports a body or query parameter that could not be
// decoded.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &badRequestError{msg: msg, err: err}
}

// decodeBody reads the request body and walks its top-level object, calling
// field for every key.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body", err)
	}
	if len(body) == 0 {
		return badRequest("request body is required", nil)
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		var bre *badRequestError
		if errors.As(err, &bre) {
			return err
		}
		return badRequest("invalid JSON body", err)
	}
	return nil
}

func decodeOptStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeLineRequests(d *jx.Decoder) ([]order.LineRequest, error) {
	var items []order.LineRequest
	err := d.Arr(func(d *jx.Decoder) error {
		var item order.LineRequest
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "itemId":
				item.ItemID, err = d.Str()
			case "name":
				item.Name, err = d.Str()
			case "quantity":
				item.Quantity, err = d.Int()
			case "unitPriceMinor":
				var v int64
				v, err = d.Int64()
				item.UnitPrice = money.Minor(v)
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOptStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID())
	e.FieldStart("orderNumber")
	e.Str(o.Number())
	e.FieldStart("restaurantId")
	e.Str(o.RestaurantID())
	e.FieldStart("tableId")
	encodeOptStr(e, o.TableID())
	e.FieldStart("createdBy")
	e.Str(o.CreatedBy())
	e.FieldStart("status")
	e.Str(string(o.Status()))
	e.FieldStart("subtotalMinor")
	e.Int64(int64(o.Subtotal()))
	e.FieldStart("discountTotalMinor")
	e.Int64(int64(o.DiscountTotal()))
	e.FieldStart("totalMinor")
	e.Int64(int64(o.Total()))
	e.FieldStart("itemCount")
	e.Int(o.ItemCount())

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines() {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID())
		e.FieldStart("itemId")
		e.Str(l.ItemID())
		e.FieldStart("name")
		e.Str(l.Name())
		e.FieldStart("quantity")
		e.Int(l.Quantity())
		e.FieldStart("unitPriceMinor")
		e.Int64(int64(l.UnitPrice()))
		e.FieldStart("subtotalMinor")
		e.Int64(int64(l.Subtotal()))
		e.FieldStart("discountMinor")
		e.Int64(int64(l.Discount()))
		e.FieldStart("totalMinor")
		e.Int64(int64(l.Total()))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("discounts")
	e.ArrStart()
	for _, d := range o.Discounts() {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(d.ID())
		e.FieldStart("discountId")
		e.Str(d.DiscountID())
		e.FieldStart("type")
		e.Str(string(d.Type()))
		e.FieldStart("value")
		e.Int64(d.Value())
		e.FieldStart("amountMinor")
		e.Int64(int64(d.Amount()))
		e.FieldStart("createdAt")
		encodeTime(e, d.CreatedAt())
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt())
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt())
	e.ObjEnd()
}

func encodeHistory(e *jx.Encoder, h order.StatusHistory) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(h.ID)
	e.FieldStart("orderId")
	e.Str(h.OrderID)
	e.FieldStart("fromStatus")
	if h.From == nil {
		e.Null()
	} else {
		e.Str(string(*h.From))
	}
	e.FieldStart("toStatus")
	e.Str(string(h.To))
	e.FieldStart("notes")
	encodeOptStr(e, h.Notes)
	e.FieldStart("changedBy")
	e.Str(h.ChangedBy)
	e.FieldStart("changedAt")
	encodeTime(e, h.ChangedAt)
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}
