package listing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a submit failed.
type ErrorKind int

const (
	InvalidPrice ErrorKind = iota + 1
	TooManyImages
	InvalidAddress
	ImageUploadFailed
	PersistFailed

	// InvalidDraft covers the field range checks.
	InvalidDraft
	// Unauthenticated means no owner is bound to the form.
	Unauthenticated
	// GeocodeUnavailable means the geocoder could not be reached or refused
	// the request, as opposed to answering that the address is unknown.
	GeocodeUnavailable
)

var kindNames = map[ErrorKind]string{
	InvalidPrice:       "InvalidPrice",
	TooManyImages:      "TooManyImages",
	InvalidAddress:     "InvalidAddress",
	ImageUploadFailed:  "ImageUploadFailed",
	PersistFailed:      "PersistFailed",
	InvalidDraft:       "InvalidDraft",
	Unauthenticated:    "Unauthenticated",
	GeocodeUnavailable: "GeocodeUnavailable",
}

var notices = map[ErrorKind]string{
	InvalidPrice:       "Discounted price needs to be less than regular price",
	TooManyImages:      "Max 6 images",
	InvalidAddress:     "Please enter a correct address",
	ImageUploadFailed:  "Images not uploaded",
	PersistFailed:      "Could not save listing",
	InvalidDraft:       "Please check the listing details",
	Unauthenticated:    "Please sign in to create a listing",
	GeocodeUnavailable: "Address lookup is unavailable, please try again",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// SubmitError is returned by every failed submit. Err carries diagnostics
// for logs; Notice is what the user sees.
type SubmitError struct {
	Kind ErrorKind
	// Detail replaces the generic notice when set.
	Detail string
	Err    error
}

func (e *SubmitError) Error() string {
	msg := "listing: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Notice is a short message suitable for showing to the user.
func (e *SubmitError) Notice() string {
	if e.Detail != "" {
		return e.Detail
	}
	return notices[e.Kind]
}

func newSubmitError(kind ErrorKind, err error) *SubmitError {
	return &SubmitError{Kind: kind, Err: err}
}

// KindOf returns the kind of a *SubmitError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// NoticeOf returns the user-facing text for err.
func NoticeOf(err error) string {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Notice()
	}
	return "Something went wrong"
}
