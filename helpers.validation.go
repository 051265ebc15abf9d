package main

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type (
	missingFieldError string
	invalidFieldError string
)

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

func (i invalidFieldError) Error() string {
	return string(i) + " is not valid"
}

// Validator wraps the struct validator with the custom catalog rules.
type Validator struct {
	validate *validator.Validate
}

// NewValidator provides a validator aware of the `bookid` tag.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bookid", func(fl validator.FieldLevel) bool {
		return NewIDsHandler().IsValid(fl.Field().String(), BookIDPrefix)
	})
	return &Validator{validate: v}
}

// ValidateCreateBookRequestBody checks if the content of a book creation request is valid.
func (v *Validator) ValidateCreateBookRequestBody(book *Book) error {
	return v.translate(v.validate.Struct(book))
}

// ValidateUpdateBookRequestBody checks if the content of a book update request is valid.
func (v *Validator) ValidateUpdateBookRequestBody(book *Book) error {
	if err := v.ValidateCreateBookRequestBody(book); err != nil {
		return err
	}

	if len(book.ID) == 0 {
		return missingFieldError("id")
	}

	if len(book.CreatedAt) == 0 {
		return missingFieldError("createdAt")
	}

	return nil
}

// translate turns the first validation failure into a short field error.
func (v *Validator) translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return missingFieldError(fe.Field())
	}
	return invalidFieldError(fe.Field())
}
