package settings

import "pipelined.dev/graph/pmt"

// Field describes one reflected block member the engine can read and
// write. Block authors list their fields through the Reflectable
// interface, typically built with FieldOf and Annotated.Field.
type Field struct {
	Name     string
	Writable bool
	Kind     pmt.Kind
	// Get reads the member as a property value.
	Get func() pmt.Value
	// Set writes a value of the matching kind. It reports false when a
	// validator rejected the value.
	Set func(pmt.Value) bool
	// Annotation carries UI metadata, nil for plain fields.
	Annotation *Annotation
}

// Annotation is the metadata of an annotated field.
type Annotation struct {
	Description string
	Unit        string
	Visible     bool
}

// Reflectable is the member-iterator contract: blocks expose their
// parameter fields instead of relying on language reflection.
type Reflectable interface {
	Fields() []Field
}

// Describer optionally supplies a block-level description folded into the
// meta-information map.
type Describer interface {
	Description() string
}

// MetaInformer optionally exposes a block's meta-information map. Unknown
// keys passed to Set and field annotations are folded into it.
type MetaInformer interface {
	MetaInformation() *pmt.Map
}

// ChangeObserver is the two-argument settings-changed hook.
type ChangeObserver interface {
	SettingsChanged(old, applied *pmt.Map)
}

// ChangeForwardObserver is the three-argument hook. It may mutate forward
// to influence the parameters propagated downstream.
type ChangeForwardObserver interface {
	SettingsChanged(old, applied, forward *pmt.Map)
}

// Resetter is the optional reset hook invoked after defaults were
// reinstated.
type Resetter interface {
	Reset()
}

// Primitive constrains field types supported by FieldOf.
type Primitive interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~string
}

// FieldOf builds a writable field over a plain struct member.
func FieldOf[T Primitive](name string, ptr *T) Field {
	return Field{
		Name:     name,
		Writable: true,
		Kind:     kindOf[T](),
		Get:      func() pmt.Value { return toValue(*ptr) },
		Set: func(v pmt.Value) bool {
			val, ok := fromValue[T](v)
			if !ok {
				return false
			}
			*ptr = val
			return true
		},
	}
}

// ReadOnlyFieldOf builds a field the engine mirrors into the active map
// but never writes.
func ReadOnlyFieldOf[T Primitive](name string, ptr *T) Field {
	return Field{
		Name: name,
		Kind: kindOf[T](),
		Get:  func() pmt.Value { return toValue(*ptr) },
	}
}

// Annotated wraps a field value with metadata and an optional validator.
type Annotated[T Primitive] struct {
	Value       T
	Description string
	Unit        string
	Visible     bool
	// Validator accepts or rejects a new value. Nil accepts everything.
	Validator func(T) bool
}

// ValidateAndSet stores v if the validator accepts it.
func (a *Annotated[T]) ValidateAndSet(v T) bool {
	if a.Validator != nil && !a.Validator(v) {
		return false
	}
	a.Value = v
	return true
}

// Field builds the engine descriptor for an annotated member.
func (a *Annotated[T]) Field(name string) Field {
	return Field{
		Name:     name,
		Writable: true,
		Kind:     kindOf[T](),
		Get:      func() pmt.Value { return toValue(a.Value) },
		Set: func(v pmt.Value) bool {
			val, ok := fromValue[T](v)
			if !ok {
				return false
			}
			return a.ValidateAndSet(val)
		},
		Annotation: &Annotation{
			Description: a.Description,
			Unit:        a.Unit,
			Visible:     a.Visible,
		},
	}
}

// Range returns a validator accepting values within [min, max].
func Range[T Primitive](min, max T) func(T) bool {
	return func(v T) bool {
		return !less(v, min) && !less(max, v)
	}
}

func less[T Primitive](a, b T) bool {
	switch x := any(a).(type) {
	case bool:
		return !x && any(b).(bool)
	case int8:
		return x < any(b).(int8)
	case int16:
		return x < any(b).(int16)
	case int32:
		return x < any(b).(int32)
	case int64:
		return x < any(b).(int64)
	case uint8:
		return x < any(b).(uint8)
	case uint16:
		return x < any(b).(uint16)
	case uint32:
		return x < any(b).(uint32)
	case uint64:
		return x < any(b).(uint64)
	case float32:
		return x < any(b).(float32)
	case float64:
		return x < any(b).(float64)
	case string:
		return x < any(b).(string)
	}
	return false
}

func kindOf[T Primitive]() pmt.Kind {
	var z T
	return toValue(z).Kind()
}

func toValue[T Primitive](v T) pmt.Value {
	switch x := any(v).(type) {
	case bool:
		return pmt.Bool(x)
	case int8:
		return pmt.Int8(x)
	case int16:
		return pmt.Int16(x)
	case int32:
		return pmt.Int32(x)
	case int64:
		return pmt.Int64(x)
	case uint8:
		return pmt.Uint8(x)
	case uint16:
		return pmt.Uint16(x)
	case uint32:
		return pmt.Uint32(x)
	case uint64:
		return pmt.Uint64(x)
	case float32:
		return pmt.Float32(x)
	case float64:
		return pmt.Float64(x)
	case string:
		return pmt.String(x)
	}
	return nil
}

func fromValue[T Primitive](v pmt.Value) (T, bool) {
	var z T
	var got any
	switch x := v.(type) {
	case pmt.Bool:
		got = bool(x)
	case pmt.Int8:
		got = int8(x)
	case pmt.Int16:
		got = int16(x)
	case pmt.Int32:
		got = int32(x)
	case pmt.Int64:
		got = int64(x)
	case pmt.Uint8:
		got = uint8(x)
	case pmt.Uint16:
		got = uint16(x)
	case pmt.Uint32:
		got = uint32(x)
	case pmt.Uint64:
		got = uint64(x)
	case pmt.Float32:
		got = float32(x)
	case pmt.Float64:
		got = float64(x)
	case pmt.String:
		got = string(x)
	default:
		return z, false
	}
	out, ok := got.(T)
	return out, ok
}
