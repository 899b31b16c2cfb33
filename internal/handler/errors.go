package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// errorDetail is one entry of the "errors" array of an error body.
type errorDetail struct {
	Code      string
	Message   string
	ProductID int64
}

// decodeError reports a request body that could not be read.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

// writeError maps err to a status code and writes the error body.
// Unexpected errors are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *order.ValidationError
		dErr  *decodeError
		mbErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &mbErr):
		writeErrorBody(w, http.StatusRequestEntityTooLarge, "request body too large", []errorDetail{{
			Code:    "body_too_large",
			Message: "request body exceeds " + strconv.FormatInt(mbErr.Limit, 10) + " bytes",
		}})
	case errors.As(err, &vErr):
		writeErrorBody(w, http.StatusUnprocessableEntity, "order rejected", []errorDetail{{
			Code:      string(vErr.Kind),
			Message:   vErr.Error(),
			ProductID: vErr.ProductID,
		}})
	case errors.As(err, &dErr):
		writeErrorBody(w, http.StatusBadRequest, "bad request", []errorDetail{{
			Code:    "invalid_body",
			Message: dErr.Error(),
		}})
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeNotFound(w)
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorBody(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func writeNotFound(w http.ResponseWriter) {
	writeErrorBody(w, http.StatusNotFound, "not found", nil)
}

func writeForbidden(w http.ResponseWriter) {
	writeErrorBody(w, http.StatusForbidden, "forbidden", nil)
}

func writeErrorBody(w http.ResponseWriter, status int, message string, details []errorDetail) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		if len(details) == 0 {
			return
		}
		e.Field("errors", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range details {
					e.Obj(func(e *jx.Encoder) {
						e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
						e.Field("message", func(e *jx.Encoder) { e.Str(d.Message) })
						if d.ProductID != 0 {
							e.Field("product_id", func(e *jx.Encoder) { e.Int64(d.ProductID) })
						}
					})
				}
			})
		})
	})
	writeJSON(w, status, e.Bytes())
}
