package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// unmarshalPositional maps a JSON array onto the exported fields of the
// struct pointed to by dst, in field declaration order. The local
// protocol carries records as positional arrays rather than objects, so
// the usual name-based unmarshaling does not apply.
func unmarshalPositional(data []byte, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("destination must be a non-nil struct pointer, got %T", dst)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	sv := v.Elem()
	st := sv.Type()
	fields := make([]reflect.Value, 0, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		if st.Field(i).IsExported() {
			fields = append(fields, sv.Field(i))
		}
	}
	if len(elems) > len(fields) {
		return fmt.Errorf("payload has %d elements, struct %s has %d fields", len(elems), st.Name(), len(fields))
	}
	for i, elem := range elems {
		if err := json.Unmarshal(elem, fields[i].Addr().Interface()); err != nil {
			return fmt.Errorf("field %d of %s: %w", i, st.Name(), err)
		}
	}
	return nil
}

// marshalPositional is the inverse of unmarshalPositional: it renders
// the exported fields of src, in declaration order, as a JSON array.
func marshalPositional(src interface{}) ([]byte, error) {
	v := reflect.ValueOf(src)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("source must be a struct, got %T", src)
	}
	st := v.Type()
	elems := make([]interface{}, 0, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		if st.Field(i).IsExported() {
			elems = append(elems, v.Field(i).Interface())
		}
	}
	return json.Marshal(elems)
}

// UnmarshalRecord decodes one positional array record, as produced by
// paginated list responses, into a struct.
func UnmarshalRecord(raw json.RawMessage, dst interface{}) error {
	if err := unmarshalPositional(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}

// MarshalFields renders a struct as the positional array payload the
// local protocol expects for record arguments.
func MarshalFields(src interface{}) (json.RawMessage, error) {
	raw, err := marshalPositional(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return raw, nil
}
