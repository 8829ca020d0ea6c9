package frame

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/relboost/relboost/errs"
)

// hostOrder is the byte order native to the running process. Persisted
// files are written little-endian when the host is little-endian,
// big-endian otherwise. DecodeColumn reads in hostOrder too: the layout
// carries no byte-order marker, and no byte swapping happens on load.
var hostOrder = func() binary.ByteOrder {
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, 1)
	if buf[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

// EncodeColumn writes a single column in the persistence layout:
//
//	u64 nrows, u64 ncols(=1), raw element bytes,
//	then u64 length + bytes for the name, then for the unit.
//
// Only Float64/TimeStampFloat and Int32/CategoryID columns are
// supported by the raw element encoding; StringBag columns are encoded
// element-by-element as length-prefixed UTF-8, one bag entry count
// followed by its tokens.
func EncodeColumn(c *Column) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(c.Len()))
	writeU64(&buf, 1)

	switch c.Kind {
	case Float64, TimeStampFloat:
		for _, v := range c.Floats {
			var b [8]byte
			hostOrder.PutUint64(b[:], math.Float64bits(v))
			buf.Write(b[:])
		}
	case Int32, CategoryID:
		for _, v := range c.Ints {
			var b [4]byte
			hostOrder.PutUint32(b[:], uint32(v))
			buf.Write(b[:])
		}
	case StringBag:
		for _, bag := range c.Strings {
			writeU64(&buf, uint64(len(bag)))
			for _, tok := range bag {
				writeString(&buf, tok)
			}
		}
	}

	writeString(&buf, c.Name)
	writeString(&buf, c.Unit)

	return buf.Bytes()
}

// DecodeColumn reverses EncodeColumn, given the Kind and Role the
// caller already knows (the byte layout carries no type tag, matching
// the teacher's scheme of one typed file per role-indexed path).
func DecodeColumn(data []byte, kind Kind, role Role, enc *Encoding) (*Column, error) {
	r := bytes.NewReader(data)

	nrows, err := readU64(r)
	if err != nil {
		return nil, errs.Corrupted.New("column header: " + err.Error())
	}
	ncols, err := readU64(r)
	if err != nil || ncols != 1 {
		return nil, errs.Corrupted.New("column header: expected ncols=1")
	}

	c := &Column{Kind: kind, Role: role, Encoding: enc}

	switch kind {
	case Float64, TimeStampFloat:
		c.Floats = make([]float64, nrows)
		for i := range c.Floats {
			var b [8]byte
			if _, err := r.Read(b[:]); err != nil {
				return nil, errs.Corrupted.New("truncated float column")
			}
			c.Floats[i] = math.Float64frombits(hostOrder.Uint64(b[:]))
		}
	case Int32, CategoryID:
		c.Ints = make([]int32, nrows)
		for i := range c.Ints {
			var b [4]byte
			if _, err := r.Read(b[:]); err != nil {
				return nil, errs.Corrupted.New("truncated int column")
			}
			c.Ints[i] = int32(hostOrder.Uint32(b[:]))
		}
	case StringBag:
		c.Strings = make([][]string, nrows)
		for i := range c.Strings {
			n, err := readU64(r)
			if err != nil {
				return nil, errs.Corrupted.New("truncated string bag length")
			}
			bag := make([]string, n)
			for j := range bag {
				s, err := readString(r)
				if err != nil {
					return nil, errs.Corrupted.New("truncated string bag token")
				}
				bag[j] = s
			}
			c.Strings[i] = bag
		}
	}

	name, err := readString(r)
	if err != nil {
		return nil, errs.Corrupted.New("truncated column name")
	}
	unit, err := readString(r)
	if err != nil {
		return nil, errs.Corrupted.New("truncated column unit")
	}
	c.Name = name
	c.Unit = unit

	return c, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	hostOrder.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return hostOrder.Uint64(b[:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU64(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil // bytes.Reader.Read reports io.EOF at end of data even for an empty buffer
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
