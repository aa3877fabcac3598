package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that knows the transaction tags and
// reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("txdate", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return domain.IsSupportedCurrency(fl.Field().String())
	})
	return v
}

// validateTransaction checks that tx is complete and consistent.
func validateTransaction(v *validator.Validate, tx *domain.Transaction) error {
	var fields []domain.FieldError
	if err := v.Struct(tx); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		for _, fe := range verrs {
			fields = append(fields, fieldError(fe))
		}
	}
	if tx.IsIncome && tx.ExpenseType != "" {
		fields = append(fields, domain.FieldError{
			Field:   "expense_type",
			Kind:    domain.OutOfRangeValue,
			Message: "expense_type is only valid for expenses",
		})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func fieldError(fe validator.FieldError) domain.FieldError {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return domain.FieldError{Field: name, Kind: domain.MissingRequiredField, Message: name + " is required"}
	case "txdate":
		return domain.FieldError{Field: name, Kind: domain.InvalidFieldType, Message: fmt.Sprintf("invalid date %q", fe.Value())}
	case "gt":
		if name == "amount" {
			return domain.FieldError{Field: name, Kind: domain.InvalidFieldType, Message: "amount must be a positive number"}
		}
		return domain.FieldError{Field: name, Kind: domain.OutOfRangeValue, Message: name + " must be positive"}
	case "currency":
		return domain.FieldError{Field: name, Kind: domain.OutOfRangeValue, Message: fmt.Sprintf("unsupported currency %q", fe.Value())}
	case "oneof":
		return domain.FieldError{Field: name, Kind: domain.OutOfRangeValue, Message: fmt.Sprintf("%s must be one of %s", name, fe.Param())}
	case "max", "min":
		return domain.FieldError{Field: name, Kind: domain.OutOfRangeValue, Message: fmt.Sprintf("%s length must satisfy %s=%s", name, fe.Tag(), fe.Param())}
	}
	return domain.FieldError{Field: name, Kind: domain.InvalidFieldType, Message: fmt.Sprintf("%s failed %s", name, fe.Tag())}
}

// validateRequest checks a request body struct.
func validateRequest(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError(fe))
	}
	return &domain.ValidationError{Fields: fields}
}
