package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FieldError maps field names to human-readable messages
type FieldError map[string]string

// Error implements the error interface
func (e FieldError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Validator validates structs by their `validate` tags
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct and returns a FieldError keyed by the
// field's json name when any rule fails.
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()
	fieldErrs := FieldError{}

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if msg := v.validateField(field, tag); msg != "" {
			fieldErrs[jsonName(fieldType)] = msg
		}
	}

	if len(fieldErrs) == 0 {
		return nil
	}
	return fieldErrs
}

// jsonName returns the field's json tag name, falling back to the Go name
func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return f.Name
	}
	return tag
}

// validateField validates a single field against its rules and returns
// a message for the first failing rule.
func (v *Validator) validateField(field reflect.Value, tag string) string {
	rules := strings.Split(tag, ",")

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]
		arg := ""
		if len(parts) == 2 {
			arg = parts[1]
		}

		switch ruleName {
		case "required":
			if field.IsZero() {
				return "field is required"
			}

		case "email":
			if field.Kind() == reflect.String && field.String() != "" {
				email := field.String()
				at := strings.Index(email, "@")
				if at <= 0 || at == len(email)-1 {
					return "invalid email format"
				}
			}

		case "mobile":
			if field.Kind() == reflect.String && field.String() != "" {
				if !mobilePattern.MatchString(field.String()) {
					return "must be a 10 digit mobile number"
				}
			}

		case "min":
			n, err := strconv.Atoi(arg)
			if err != nil {
				continue
			}
			switch field.Kind() {
			case reflect.String:
				if field.String() != "" && len(strings.TrimSpace(field.String())) < n {
					return fmt.Sprintf("minimum length is %d", n)
				}
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				if field.Int() < int64(n) {
					return fmt.Sprintf("minimum is %d", n)
				}
			case reflect.Float32, reflect.Float64:
				if field.Float() < float64(n) {
					return fmt.Sprintf("minimum is %d", n)
				}
			}

		case "max":
			n, err := strconv.Atoi(arg)
			if err != nil {
				continue
			}
			switch field.Kind() {
			case reflect.String:
				if len(strings.TrimSpace(field.String())) > n {
					return fmt.Sprintf("maximum length is %d", n)
				}
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				if field.Int() > int64(n) {
					return fmt.Sprintf("maximum is %d", n)
				}
			case reflect.Float32, reflect.Float64:
				if field.Float() > float64(n) {
					return fmt.Sprintf("maximum is %d", n)
				}
			}

		case "oneof":
			if field.Kind() == reflect.String && field.String() != "" {
				allowed := strings.Split(arg, " ")
				found := false
				for _, a := range allowed {
					if field.String() == a {
						found = true
						break
					}
				}
				if !found {
					return "must be one of " + strings.Join(allowed, ", ")
				}
			}
		}
	}

	return ""
}
