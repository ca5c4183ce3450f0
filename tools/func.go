package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/schema"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cast"
)

// RunFunc is the implementation of a typed tool.
type RunFunc[I any] func(ctx context.Context, in *I) (string, error)

// Func is a tool with the argument struct I.
// The parameters schema is reflected from I: `json` tags name the fields,
// `jsonschema` tags describe them, `validate` tags mark the required ones.
type Func[I any] struct {
	name        string
	description string
	params      *jsonschema.Schema
	run         RunFunc[I]
}

var _ Tool[struct{}] = (*Func[struct{}])(nil)

// New returns the typed tool, it panics if I is not a struct.
func New[I any](name, description string, run RunFunc[I]) *Func[I] {
	return &Func[I]{
		name:        name,
		description: description,
		params:      schema.MustFor[I](),
		run:         run,
	}
}

// Name returns the name of the Tool.
func (f *Func[I]) Name() string {
	return f.name
}

// Description returns the description of the Tool.
func (f *Func[I]) Description() string {
	return f.description
}

// Parameters returns the JSON schema of I.
func (f *Func[I]) Parameters() *jsonschema.Schema {
	return f.params
}

// Run executes the tool with typed arguments, no validation is performed.
func (f *Func[I]) Run(ctx context.Context, in *I) (string, error) {
	return f.run(ctx, in)
}

// Call binds and validates the arguments, then runs the tool.
func (f *Func[I]) Call(ctx context.Context, args map[string]any) (string, error) {
	in, err := Bind[I](f.name, f.params, args)
	if err != nil {
		return "", err
	}
	return f.run(ctx, in)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Bind coerces the arguments to the types declared in the schema,
// decodes them into I and validates the result.
// Models often send numbers as strings or booleans as "true",
// such values are accepted when they convert cleanly.
func Bind[I any](tool string, params *jsonschema.Schema, args map[string]any) (*I, error) {
	coerced := make(map[string]any, len(args))
	for k, v := range args {
		coerced[k] = v
	}

	if params != nil && params.Properties != nil {
		for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
			v, ok := coerced[pair.Key]
			if !ok || v == nil {
				continue
			}
			cv, err := coerce(pair.Value.Type, v)
			if err != nil {
				return nil, &ValidationError{
					Tool:    tool,
					Fields:  []string{pair.Key},
					Message: "Invalid value for " + pair.Key + ": expected " + pair.Value.Type,
				}
			}
			coerced[pair.Key] = cv
		}
	}

	js, err := json.Marshal(coerced)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode arguments")
	}
	in := new(I)
	if err = json.Unmarshal(js, in); err != nil {
		return nil, &ValidationError{Tool: tool, Message: "Invalid arguments: " + err.Error()}
	}

	if err = getValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, errors.WithStack(err)
		}
		ve := &ValidationError{Tool: tool}
		for _, fe := range verrs {
			ve.Fields = append(ve.Fields, fe.Field())
		}
		if m, ok := any(in).(ValidationMessager); ok {
			ve.Message = m.ValidationMessage()
		}
		return nil, ve
	}
	return in, nil
}

func coerce(typ string, v any) (any, error) {
	switch typ {
	case "integer":
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return cast.ToInt64E(v)
	case "number":
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return cast.ToFloat64E(v)
	case "boolean":
		return cast.ToBoolE(v)
	case "string":
		switch v.(type) {
		case map[string]any, []any:
			return nil, errors.New("not a scalar")
		}
		return cast.ToStringE(v)
	}
	return v, nil
}
