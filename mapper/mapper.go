// Package mapper scans result rows into Go structs. Columns match
// exported fields by `db` tag first, then by case-insensitive name.
package mapper

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pqasync/pqasync/client"
)

// ScanRow copies one row into dest, which must be a pointer to a struct.
// Null cells leave the field at its zero value.
func ScanRow(row *client.Row, dest interface{}) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("mapper: dest must be a non-nil pointer to a struct, got %T", dest)
	}
	elem := v.Elem()
	fields := fieldsByColumn(elem.Type())

	for _, col := range row.Columns() {
		idx, ok := fields[strings.ToLower(col.Name)]
		if !ok {
			continue
		}
		val, err := row.Value(col.Index)
		if err != nil {
			return err
		}
		decoded, err := val.Decode()
		if err != nil {
			return err
		}
		if decoded == nil {
			continue
		}
		if err := assign(elem.Field(idx), decoded, col.Name); err != nil {
			return err
		}
	}
	return nil
}

// ScanTable copies every row of a table into dest, a pointer to a slice
// of structs.
func ScanTable(table *client.Table, dest interface{}) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("mapper: dest must be a non-nil pointer to a slice, got %T", dest)
	}
	sliceVal := v.Elem()
	elemType := sliceVal.Type().Elem()
	if elemType.Kind() != reflect.Struct {
		return fmt.Errorf("mapper: dest must point to a slice of structs, got %s", elemType)
	}

	out := reflect.MakeSlice(sliceVal.Type(), 0, table.Len())
	for _, row := range table.Rows() {
		item := reflect.New(elemType)
		if err := ScanRow(row, item.Interface()); err != nil {
			return err
		}
		out = reflect.Append(out, item.Elem())
	}
	sliceVal.Set(out)
	return nil
}

// fieldsByColumn maps lower-cased column names to struct field indices.
func fieldsByColumn(t reflect.Type) map[string]int {
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("db"); ok {
			if tag == "-" {
				continue
			}
			m[strings.ToLower(tag)] = i
			continue
		}
		m[strings.ToLower(f.Name)] = i
	}
	return m
}

// assign stores a decoded value into a struct field, widening integer and
// float widths when loss-free.
func assign(field reflect.Value, decoded interface{}, col string) error {
	dv := reflect.ValueOf(decoded)
	ft := field.Type()

	if dv.Type().AssignableTo(ft) {
		field.Set(dv)
		return nil
	}
	if dv.Type().ConvertibleTo(ft) {
		switch dv.Kind() {
		case reflect.Int16, reflect.Int32, reflect.Int64:
			if ft.Kind() == reflect.Int || ft.Kind() == reflect.Int64 ||
				(ft.Kind() == reflect.Int32 && dv.Kind() != reflect.Int64) {
				field.Set(dv.Convert(ft))
				return nil
			}
		case reflect.Float32:
			if ft.Kind() == reflect.Float64 {
				field.Set(dv.Convert(ft))
				return nil
			}
		case reflect.String:
			if ft.Kind() == reflect.String {
				field.Set(dv.Convert(ft))
				return nil
			}
		}
	}
	return fmt.Errorf("mapper: column %q: cannot assign %T to %s", col, decoded, ft)
}
