/*
Package req provides helper functions for request parsing and data binding.

Realtime clients send every event as a JSON frame whose payload is decoded lazily by the
handler registered for that event. Payloads are decoded strictly: unknown fields and trailing
data are rejected.
*/
package req

import (
	"bytes"
	"encoding/json"

	"messenger/internal/pkg/errs"
)

// DecodePayload binds a raw event payload to dst. An empty payload leaves dst untouched.
func DecodePayload(raw json.RawMessage, dst any) *errs.CustomError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	return decodeStrict(json.NewDecoder(bytes.NewReader(trimmed)), dst)
}

func decodeStrict(decoder *json.Decoder, dst any) *errs.CustomError {
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
