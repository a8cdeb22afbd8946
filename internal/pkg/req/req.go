/*
Package req binds HTTP request bodies into Go values.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"eduportal/internal/pkg/errs"
)

// MaxJSONBody caps the size of JSON bodies accepted by the gateway (64 KB).
const MaxJSONBody int64 = 64 << 10

// BindJSON decodes the JSON request body into dst.
// It rejects non-JSON content types, unknown fields, oversized bodies and trailing content.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.Wrap(errs.ErrInvalidJSONFormat, err)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
