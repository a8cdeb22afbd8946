/*
Package token reads the claims of compact session tokens (header.payload.signature).

Only the payload segment is decoded. Signatures are never verified here: the backend is the
enforcement point, and everything derived from these claims is a UX convenience for gating
navigation, not a security control.

Decode is the only partial function in the package. Every derived query (IsExpired, RolesOf,
HasRole, ...) absorbs decode failures and answers with the absent value for its type, with one
deliberate exception: IsExpired reports an undecodable token as expired, so a broken session is
treated as logged out rather than as live.
*/
package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt"
)

// segmentCount is the number of dot-separated segments of a compact token.
const segmentCount = 3

var (
	// ErrMalformedToken matches any *MalformedTokenError via errors.Is.
	ErrMalformedToken = errors.New("malformed token")

	// ErrPayloadDecode matches any *PayloadDecodeError via errors.Is.
	// Derived queries absorb it; IsExpired answers true for such tokens.
	ErrPayloadDecode = errors.New("token payload decode failed")
)

// MalformedTokenError reports a token that does not split into exactly three segments.
type MalformedTokenError struct {
	// Segments is the number of segments found.
	Segments int
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed token: expected %d dot-separated segments, got %d", segmentCount, e.Segments)
}

// Is makes errors.Is(err, ErrMalformedToken) true.
func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

// PayloadDecodeError reports a payload segment that is not base64url-encoded UTF-8 JSON object text.
type PayloadDecodeError struct {
	// Stage is the step that failed: "base64", "utf8" or "json".
	Stage string

	// Err is the underlying cause.
	Err error
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("token payload decode failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PayloadDecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPayloadDecode) true.
func (e *PayloadDecodeError) Is(target error) bool {
	return target == ErrPayloadDecode
}

// Decode splits raw into its three segments and decodes the payload into Claims.
// It returns *MalformedTokenError or *PayloadDecodeError on failure.
func Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != segmentCount {
		return Claims{}, &MalformedTokenError{Segments: len(parts)}
	}

	payload, err := jwt.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, &PayloadDecodeError{Stage: "base64", Err: err}
	}

	if !utf8.Valid(payload) {
		return Claims{}, &PayloadDecodeError{Stage: "utf8", Err: errors.New("payload is not valid UTF-8")}
	}

	values, err := decodeObject(payload)
	if err != nil {
		return Claims{}, &PayloadDecodeError{Stage: "json", Err: err}
	}

	return Claims{values: values}, nil
}

// decodeObject parses payload as exactly one JSON object. Numbers are kept as json.Number
// so integer claims round-trip without float rounding.
func decodeObject(payload []byte) (jwt.MapClaims, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var values jwt.MapClaims
	if err := decoder.Decode(&values); err != nil {
		return nil, err
	}

	if values == nil {
		return nil, errors.New("payload is not a JSON object")
	}

	if decoder.More() {
		return nil, errors.New("unexpected data after payload object")
	}

	return values, nil
}

// Codec answers derived queries about raw tokens against an injectable clock.
type Codec struct {
	now func() time.Time
}

// NewCodec returns a Codec reading the current time from now. A nil now uses time.Now.
func NewCodec(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

var std = NewCodec(time.Now)

// Default returns the package Codec backed by the wall clock.
func Default() *Codec {
	return std
}

// nowUnix returns the current time truncated to whole seconds.
func (c *Codec) nowUnix() int64 {
	return c.now().Unix()
}
