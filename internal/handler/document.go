package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
)

const contentType = "application/json"

// Resource types used in documents.
const (
	typeOrder   = "order"
	typeProduct = "product"
	typeUser    = "user"
)

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeDocument writes {"data": ..., "included": [...]}. included is omitted
// when nil.
func writeDocument(w http.ResponseWriter, status int, data func(e *jx.Encoder), included []product.Product) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("data", data)
		if included != nil {
			e.Field("included", func(e *jx.Encoder) { encodeIncluded(e, included) })
		}
	})
	writeJSON(w, status, e.Bytes())
}

func resourceID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeIdentifier(e *jx.Encoder, typ string, id int64) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(resourceID(id)) })
		e.Field("type", func(e *jx.Encoder) { e.Str(typ) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(resourceID(o.ID)) })
		e.Field("type", func(e *jx.Encoder) { e.Str(typeOrder) })
		e.Field("attributes", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
				e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
			})
		})
		e.Field("relationships", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("user", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("data", func(e *jx.Encoder) { encodeIdentifier(e, typeUser, o.UserID) })
					})
				})
				e.Field("products", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("data", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, p := range o.Placements {
									encodeIdentifier(e, typeProduct, p.ProductID)
								}
							})
						})
					})
				})
			})
		})
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(resourceID(p.ID)) })
		e.Field("type", func(e *jx.Encoder) { e.Str(typeProduct) })
		e.Field("attributes", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("title", func(e *jx.Encoder) { e.Str(p.Title) })
				e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.StringFixed(2)) })
			})
		})
		e.Field("relationships", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("user", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("data", func(e *jx.Encoder) { encodeIdentifier(e, typeUser, p.UserID) })
					})
				})
			})
		})
	})
}

// encodeIncluded writes each distinct product once, in first-seen order.
func encodeIncluded(e *jx.Encoder, products []product.Product) {
	seen := make(map[int64]struct{}, len(products))
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			encodeProduct(e, p)
		}
	})
}
