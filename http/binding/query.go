package binding

import (
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// QueryUnmarshaler lets a type parse its own query value.
type QueryUnmarshaler interface {
	UnmarshalQuery(string) error
}

var (
	unmarshalerType = reflect.TypeOf((*QueryUnmarshaler)(nil)).Elem()
	timeType        = reflect.TypeOf(time.Time{})
)

// ArrayStrategy selects how slice values are read.
type ArrayStrategy int

const (
	// ArrayStrategyMultiple reads repeated keys: ?feature=seats&feature=api
	ArrayStrategyMultiple ArrayStrategy = iota
	// ArrayStrategyComma splits one value: ?feature=seats,api
	ArrayStrategyComma
	// ArrayStrategyBoth splits a single comma value, else reads repeats.
	ArrayStrategyBoth
)

// QueryParser maps query parameters onto struct fields by `query` tag,
// falling back to the `json` tag and then the lower-cased field name.
type QueryParser struct {
	tagName       string
	defaultTag    string
	arrayStrategy ArrayStrategy
}

func NewQueryParser() *QueryParser {
	return &QueryParser{
		tagName:       "query",
		defaultTag:    "default",
		arrayStrategy: ArrayStrategyBoth,
	}
}

func (qp *QueryParser) SetArrayStrategy(strategy ArrayStrategy) {
	qp.arrayStrategy = strategy
}

// Parse fills v, a pointer to struct, from values. Missing keys take the
// field's `default` tag.
func (qp *QueryParser) Parse(values url.Values, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &BindError{Type: "bind_error", Message: "v must be a non-nil pointer"}
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return &BindError{Type: "bind_error", Message: "v must be a pointer to struct"}
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := qp.queryName(fieldType)
		if name == "-" {
			continue
		}

		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			def := fieldType.Tag.Get(qp.defaultTag)
			if def == "" {
				continue
			}
			raw = []string{def}
		}
		if err := qp.set(field, raw, fieldType.Name); err != nil {
			return err
		}
	}
	return nil
}

func (qp *QueryParser) queryName(f reflect.StructField) string {
	for _, tag := range []string{qp.tagName, "json"} {
		if v := f.Tag.Get(tag); v != "" {
			return strings.Split(v, ",")[0]
		}
	}
	return strings.ToLower(f.Name)
}

func (qp *QueryParser) set(field reflect.Value, values []string, name string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return qp.set(field.Elem(), values, name)
	}
	if field.CanAddr() && field.Addr().Type().Implements(unmarshalerType) {
		if err := field.Addr().Interface().(QueryUnmarshaler).UnmarshalQuery(values[0]); err != nil {
			return &BindError{Type: "bind_error", Field: name, Message: "failed to unmarshal query: " + err.Error()}
		}
		return nil
	}
	if field.Kind() == reflect.Slice {
		return qp.setSlice(field, values, name)
	}
	return setScalar(field, strings.TrimSpace(values[0]), name)
}

func (qp *QueryParser) setSlice(field reflect.Value, values []string, name string) error {
	items := values
	switch qp.arrayStrategy {
	case ArrayStrategyComma:
		items = strings.Split(values[0], ",")
	case ArrayStrategyBoth:
		if len(values) == 1 && strings.Contains(values[0], ",") {
			items = strings.Split(values[0], ",")
		}
	}

	slice := reflect.MakeSlice(field.Type(), len(items), len(items))
	for i, item := range items {
		if err := setScalar(slice.Index(i), strings.TrimSpace(item), name); err != nil {
			return err
		}
	}
	field.Set(slice)
	return nil
}

func setScalar(field reflect.Value, value, name string) error {
	invalid := func(kind string, err error) error {
		return &BindError{Type: "bind_error", Field: name, Message: "invalid " + kind + " value: " + err.Error()}
	}

	if field.Type() == timeType {
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return invalid("time", err)
		}
		field.Set(reflect.ValueOf(t.UTC()))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return invalid("integer", err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return invalid("unsigned integer", err)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid("float", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return invalid("boolean", err)
		}
		field.SetBool(b)
	default:
		return &BindError{Type: "bind_error", Field: name, Message: "unsupported field type: " + field.Kind().String()}
	}
	return nil
}

// QueryWithParser parses r's query with parser, then validates v.
func QueryWithParser(r *http.Request, v any, parser *QueryParser) error {
	if err := parser.Parse(r.URL.Query(), v); err != nil {
		return err
	}
	return validate(v)
}
