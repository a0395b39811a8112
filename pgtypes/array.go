package pgtypes

// ArrayDim describes one dimension of an array value.
type ArrayDim struct {
	Length     int32
	LowerBound int32
}

// Array is a decoded homogeneous array. Elements are stored flattened in
// row-major order; Dims preserves the wire dimensions. A nil element is a
// null.
type Array struct {
	ElemOID  OID
	Dims     []ArrayDim
	Elements []interface{}
}

// DimCount returns the number of dimensions.
func (a Array) DimCount() int { return len(a.Dims) }

// Len returns the total number of elements across all dimensions.
func (a Array) Len() int { return len(a.Elements) }

// ArrayOf builds a one-dimensional array value over the given element type.
func ArrayOf(elemOID OID, elements ...interface{}) Array {
	return Array{
		ElemOID:  elemOID,
		Dims:     []ArrayDim{{Length: int32(len(elements)), LowerBound: 1}},
		Elements: elements,
	}
}

// ArrayHeader is the array framing without its elements. It lets callers
// inspect the element type and dimensionality of a wire buffer before
// paying for a full decode.
type ArrayHeader struct {
	ElemOID OID
	Dims    []ArrayDim
	HasNull bool
}

// DecodeArrayHeader reads only the framing of a binary array buffer.
func DecodeArrayHeader(oid OID, data []byte) (ArrayHeader, error) {
	h, _, err := decodeArrayHeader(oid, data)
	return h, err
}

func decodeArrayHeader(oid OID, data []byte) (ArrayHeader, *wireReader, error) {
	r := newWireReader(oid, data)

	ndims := r.int32()
	hasNull := r.int32()
	elemOID := r.uint32()
	if r.err != nil {
		return ArrayHeader{}, nil, r.err
	}
	if ndims < 0 {
		return ArrayHeader{}, nil, decodeErrf(oid, "negative dimension count %d", ndims)
	}
	// the server caps arrays at six dimensions
	if ndims > 6 {
		return ArrayHeader{}, nil, decodeErrf(oid, "dimension count %d exceeds maximum", ndims)
	}

	h := ArrayHeader{
		ElemOID: OID(elemOID),
		HasNull: hasNull != 0,
		Dims:    make([]ArrayDim, 0, ndims),
	}
	for i := int32(0); i < ndims; i++ {
		d := ArrayDim{Length: r.int32(), LowerBound: r.int32()}
		if r.err != nil {
			return ArrayHeader{}, nil, r.err
		}
		if d.Length < 0 {
			return ArrayHeader{}, nil, decodeErrf(oid, "negative dimension length %d", d.Length)
		}
		h.Dims = append(h.Dims, d)
	}
	return h, r, nil
}

func decodeArray(oid OID, data []byte) (interface{}, error) {
	declaredElem, ok := ElementOID(oid)
	if !ok {
		return nil, &UnsupportedOIDError{OID: oid}
	}

	h, r, err := decodeArrayHeader(oid, data)
	if err != nil {
		return nil, err
	}
	if h.ElemOID != declaredElem {
		return nil, decodeErrf(oid, "element type %s does not match array type", h.ElemOID.Name())
	}

	total := 1
	for _, d := range h.Dims {
		total *= int(d.Length)
	}
	if len(h.Dims) == 0 {
		total = 0
	}

	elems := make([]interface{}, 0, total)
	for i := 0; i < total; i++ {
		elemLen := r.int32()
		if r.err != nil {
			return nil, r.err
		}
		if elemLen == -1 {
			elems = append(elems, nil)
			continue
		}
		if elemLen < 0 {
			return nil, decodeErrf(oid, "invalid element length %d", elemLen)
		}
		raw := r.take(int(elemLen))
		if r.err != nil {
			return nil, r.err
		}
		v, err := DecodeBinary(h.ElemOID, raw)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	if err := r.done(); err != nil {
		return nil, err
	}

	return Array{ElemOID: h.ElemOID, Dims: h.Dims, Elements: elems}, nil
}

func encodeArrayOID(oid OID, v interface{}) ([]byte, error) {
	elemOID, ok := ElementOID(oid)
	if !ok {
		return nil, &UnsupportedOIDError{OID: oid}
	}

	a, ok := v.(Array)
	if !ok {
		var err error
		a, err = arrayFromSlice(elemOID, v)
		if err != nil {
			return nil, err
		}
	}
	if a.ElemOID != elemOID {
		return nil, encodeErrf(oid, "array element type %s does not match", a.ElemOID.Name())
	}

	total := 1
	for _, d := range a.Dims {
		if d.Length < 0 {
			return nil, encodeErrf(oid, "negative dimension length %d", d.Length)
		}
		total *= int(d.Length)
	}
	if len(a.Dims) == 0 {
		total = 0
	}
	if total != len(a.Elements) {
		return nil, encodeErrf(oid, "dimensions cover %d elements, have %d", total, len(a.Elements))
	}

	hasNull := int32(0)
	for _, e := range a.Elements {
		if e == nil {
			hasNull = 1
			break
		}
	}

	w := &wireWriter{}
	w.int32(int32(len(a.Dims)))
	w.int32(hasNull)
	w.uint32(uint32(a.ElemOID))
	for _, d := range a.Dims {
		w.int32(d.Length)
		w.int32(d.LowerBound)
	}
	for _, e := range a.Elements {
		if e == nil {
			w.int32(-1)
			continue
		}
		raw, err := EncodeBinary(a.ElemOID, e)
		if err != nil {
			return nil, err
		}
		w.int32(int32(len(raw)))
		w.bytes(raw)
	}
	return w.buf, nil
}

// arrayFromSlice lifts a plain Go slice into a one-dimensional Array.
func arrayFromSlice(elemOID OID, v interface{}) (Array, error) {
	switch s := v.(type) {
	case []interface{}:
		return ArrayOf(elemOID, s...), nil
	case []bool:
		return liftSlice(elemOID, s), nil
	case []int16:
		return liftSlice(elemOID, s), nil
	case []int32:
		return liftSlice(elemOID, s), nil
	case []int64:
		return liftSlice(elemOID, s), nil
	case []int:
		return liftSlice(elemOID, s), nil
	case []float32:
		return liftSlice(elemOID, s), nil
	case []float64:
		return liftSlice(elemOID, s), nil
	case []string:
		return liftSlice(elemOID, s), nil
	default:
		return Array{}, encodeErrf(elemOID, "cannot build array from %T", v)
	}
}

func liftSlice[T any](elemOID OID, s []T) Array {
	elems := make([]interface{}, len(s))
	for i, e := range s {
		elems[i] = e
	}
	return ArrayOf(elemOID, elems...)
}
