package client

import (
	"fmt"
	"strings"

	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pgtypes"
)

// Column describes one result column: the value type, the zero-based
// position, the name the server reported and the wire format.
type Column struct {
	OID    pgtypes.OID
	Index  int
	Name   string
	Format int16
}

// Columns is the ordered column descriptor shared by every row of a
// result.
type Columns []Column

// Index returns the position of the named column (case-insensitive), or
// -1.
func (cs Columns) Index(name string) int {
	for i := range cs {
		if strings.EqualFold(cs[i].Name, name) {
			return i
		}
	}
	return -1
}

func columnsOf(fields []pgwire.Field) Columns {
	cols := make(Columns, len(fields))
	for i, f := range fields {
		cols[i] = Column{OID: f.OID, Index: i, Name: f.Name, Format: f.Format}
	}
	return cols
}

// Value is one nullable cell. The raw buffer is owned by the row.
type Value struct {
	col Column
	raw []byte
}

// IsNull reports whether the cell is a null.
func (v Value) IsNull() bool { return v.raw == nil }

// Column returns the cell's column descriptor.
func (v Value) Column() Column { return v.col }

// Raw returns the cell's wire buffer, nil for null.
func (v Value) Raw() []byte { return v.raw }

// Decode converts the cell into its native value via the codec. Text
// format cells come back as strings.
func (v Value) Decode() (interface{}, error) {
	if v.raw == nil {
		return nil, nil
	}
	if v.col.Format == pgtypes.TextFormat {
		return string(v.raw), nil
	}
	return pgtypes.DecodeBinary(v.col.OID, v.raw)
}

// String renders the cell for display; decode failures render as their
// error text.
func (v Value) String() string {
	d, err := v.Decode()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	if d == nil {
		return "<null>"
	}
	return fmt.Sprint(d)
}

// Row is one result row with owned per-column buffers. Typed access goes
// through the codec.
type Row struct {
	cols Columns
	raw  [][]byte
}

func newRow(cols Columns, raw [][]byte) *Row {
	return &Row{cols: cols, raw: raw}
}

// Columns returns the row's column descriptors.
func (r *Row) Columns() Columns { return r.cols }

// Len returns the number of cells.
func (r *Row) Len() int { return len(r.raw) }

// Value returns the i-th cell.
func (r *Row) Value(i int) (Value, error) {
	if i < 0 || i >= len(r.raw) {
		return Value{}, &QueryError{Code: "E_BAD_COLUMN", Message: fmt.Sprintf("invalid column index %d", i)}
	}
	return Value{col: r.cols[i], raw: r.raw[i]}, nil
}

// ValueByName returns the named cell.
func (r *Row) ValueByName(name string) (Value, error) {
	i := r.cols.Index(name)
	if i == -1 {
		return Value{}, &QueryError{Code: "E_BAD_COLUMN", Message: fmt.Sprintf("column name %q is not valid", name)}
	}
	return Value{col: r.cols[i], raw: r.raw[i]}, nil
}

// Decode returns the whole row as native values in column order.
func (r *Row) Decode() ([]interface{}, error) {
	out := make([]interface{}, len(r.raw))
	for i := range r.raw {
		v, err := r.Value(i)
		if err != nil {
			return nil, err
		}
		out[i], err = v.Decode()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RowValue decodes the named column of a row into T.
func RowValue[T any](r *Row, name string) (T, error) {
	var zero T
	v, err := r.ValueByName(name)
	if err != nil {
		return zero, err
	}
	d, err := v.Decode()
	if err != nil {
		return zero, err
	}
	return convertValue[T](d)
}

// Table is a complete result set: the column descriptor plus its rows.
type Table struct {
	cols Columns
	rows []*Row
}

// Columns returns the table's column descriptors.
func (t *Table) Columns() Columns { return t.cols }

// Len returns the row count.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the i-th row.
func (t *Table) Row(i int) *Row { return t.rows[i] }

// Rows returns every row in order.
func (t *Table) Rows() []*Row { return t.rows }

// NewTable builds a Table from a raw driver result. Fatal results come
// back as their server error.
func NewTable(res *pgwire.Result) (*Table, error) {
	return processQuery(res)
}

// tableOf builds a Table from a wire result, taking ownership of the row
// buffers.
func tableOf(res *pgwire.Result) *Table {
	cols := columnsOf(res.Fields)
	t := &Table{cols: cols, rows: make([]*Row, 0, len(res.Rows))}
	for _, raw := range res.Rows {
		t.rows = append(t.rows, newRow(cols, raw))
	}
	return t
}

// convertValue narrows a decoded interface value to T, widening integer
// widths when loss-free.
func convertValue[T any](d interface{}) (T, error) {
	var zero T
	if d == nil {
		return zero, nil
	}
	if v, ok := d.(T); ok {
		return v, nil
	}

	// integer widening: the server's column width need not match the
	// caller's requested type exactly
	switch any(zero).(type) {
	case int64:
		switch n := d.(type) {
		case int16:
			return any(int64(n)).(T), nil
		case int32:
			return any(int64(n)).(T), nil
		}
	case int:
		switch n := d.(type) {
		case int16:
			return any(int(n)).(T), nil
		case int32:
			return any(int(n)).(T), nil
		case int64:
			return any(int(n)).(T), nil
		}
	case float64:
		if n, ok := d.(float32); ok {
			return any(float64(n)).(T), nil
		}
	case string:
		return any(fmt.Sprint(d)).(T), nil
	}

	return zero, &QueryError{
		Code:    "E_TYPE_MISMATCH",
		Message: fmt.Sprintf("cannot convert %T to %T", d, zero),
	}
}
