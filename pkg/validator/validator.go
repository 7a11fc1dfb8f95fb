package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates request DTOs via `validate` struct tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Validator{v: v}
}

func (val *Validator) Validate(obj interface{}) error {
	if err := val.v.Struct(obj); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("field %s failed on %q", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

func (val *Validator) Var(field interface{}, rules string) error {
	return val.v.Var(field, rules)
}
