package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"collegeplan/internal/types"
)

// Validator wraps go-playground/validator with the domain's custom tags:
//
//	feature_type  a metered feature (essayWrites, collegeSaves)
//	plan_id       a catalog plan id
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator that reports fields by their JSON names.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("feature_type", func(fl validator.FieldLevel) bool {
		return types.FeatureType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("plan_id", func(fl validator.FieldLevel) bool {
		switch types.PlanID(fl.Field().String()) {
		case types.PlanFree, types.PlanPro, types.PlanEnterprise:
			return true
		}
		return false
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct checks s against its validate tags. Failures are returned
// as a 400 AppError whose code names the first failing rule and whose
// details list every failing field.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("struct validation misconfigured", "type", fmt.Sprintf("%T", s), "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fe.Tag()
	}

	first := verrs[0]
	return types.NewAppErrorWithDetails(codeForTag(first.Tag()),
		fmt.Sprintf("invalid field %q: failed %q", fieldPath(first), first.Tag()),
		err,
		map[string]any{"fields": fields},
	)
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "feature_type":
		return types.ErrCodeValidationFeatureType
	case "plan_id":
		return types.ErrCodeValidationPlan
	default:
		return types.ErrCodeValidationInvalidBody
	}
}
