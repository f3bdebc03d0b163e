package scraper

import (
	"errors"
	"fmt"
)

// ErrItemNotFound indicates that a required piece of an entity (product
// detail row, title, breadcrumb category id) was absent from the document.
// It means "no such product", not a transport failure.
var ErrItemNotFound = errors.New("item not found")

// MissingOfferFieldError indicates that a single offer node lacked one of
// its required fields. The offer is skipped; the collection continues.
type MissingOfferFieldError struct {
	Field string
	Err   error
}

func (e *MissingOfferFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("offer missing field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("offer missing field %q", e.Field)
}

func (e *MissingOfferFieldError) Unwrap() error {
	return e.Err
}

// UnknownConditionError indicates text that is not one of the recognized
// offer condition strings.
type UnknownConditionError struct {
	Value string
}

func (e *UnknownConditionError) Error() string {
	return fmt.Sprintf("unknown offer condition %q", e.Value)
}
