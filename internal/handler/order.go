package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// ListOrders returns the caller's orders. With ?include=products the placed
// products are added as included resources.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListOrders(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var included []product.Product
	if includes(r, "products") {
		products, err := h.orderService.Products(r.Context(), orders...)
		if err != nil {
			writeError(w, r, err)
			return
		}
		included = nonNil(products)
	}

	writeDocument(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) }, included)
}

// GetOrder returns one of the caller's orders with its products. Orders of
// other users are reported as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeNotFound(w)
		return
	}

	d, err := h.orderService.GetOrder(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeDocument(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, d.Order) }, nonNil(d.Products))
}

// PlaceOrder creates an order for the caller from a list of product ids.
// A total sent by the client is ignored.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, r, &decodeError{err: err})
		return
	}
	ids, err := decodePlaceOrder(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.orderService.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:     currentUser(r),
		ProductIDs: ids,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/orders/"+resourceID(d.Order.ID))
	writeDocument(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, d.Order) }, nonNil(d.Products))
}

// decodePlaceOrder reads {"order":{"product_ids":[...]}}. A bare
// {"product_ids":[...]} is accepted too. Ids may be numbers or numeric
// strings; other fields are ignored. The product_ids array is required,
// an empty one is left to the empty order policy.
func decodePlaceOrder(data []byte) ([]int64, error) {
	var (
		ids   []int64
		found bool
	)
	readIDs := func(d *jx.Decoder) (err error) {
		ids, err = decodeIDs(d)
		found = err == nil
		return err
	}

	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "order":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "product_ids" {
					return d.Skip()
				}
				return readIDs(d)
			})
		case "product_ids":
			return readIDs(d)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, &decodeError{err: err}
	}
	if tt := d.Next(); tt != jx.Invalid {
		return nil, &decodeError{err: errors.Errorf("unexpected %s after request object", tt)}
	}
	if !found {
		return nil, &decodeError{err: errors.New("order.product_ids is required")}
	}
	return ids, nil
}

func decodeIDs(d *jx.Decoder) ([]int64, error) {
	if tt := d.Next(); tt != jx.Array {
		return nil, errors.Errorf("product_ids must be an array, got %s", tt)
	}

	ids := []int64{}
	appendID := func(s string) error {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.Errorf("product id %q is not an integer", s)
		}
		ids = append(ids, id)
		return nil
	}
	err := d.Arr(func(d *jx.Decoder) error {
		switch tt := d.Next(); tt {
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return errors.Wrap(err, "product id")
			}
			return appendID(string(n))
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "product id")
			}
			return appendID(s)
		default:
			return errors.Errorf("product id must be a number, got %s", tt)
		}
	})
	return ids, err
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// includes reports whether the comma separated include parameter names rel.
func includes(r *http.Request, rel string) bool {
	for _, v := range strings.Split(r.URL.Query().Get("include"), ",") {
		if strings.TrimSpace(v) == rel {
			return true
		}
	}
	return false
}

func nonNil(products []product.Product) []product.Product {
	if products == nil {
		return []product.Product{}
	}
	return products
}
