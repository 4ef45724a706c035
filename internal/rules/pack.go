package rules

import "github.com/pkg/errors"

// bitWriter accumulates fields of arbitrary bit width into a byte slice,
// least-significant-bit first, matching spec.md §4.1's packed encoding.
type bitWriter struct {
	out  []byte
	acc  uint64
	nbit uint
}

func (w *bitWriter) writeBits(v uint64, n uint) {
	w.acc |= v << w.nbit
	w.nbit += n
	for w.nbit >= 8 {
		w.out = append(w.out, byte(w.acc))
		w.acc >>= 8
		w.nbit -= 8
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nbit > 0 {
		w.out = append(w.out, byte(w.acc))
		w.acc = 0
		w.nbit = 0
	}
	return w.out
}

// bitReader is the inverse of bitWriter.
type bitReader struct {
	in   []byte
	pos  int // byte index
	acc  uint64
	nbit uint
}

func (r *bitReader) readBits(n uint) (uint64, bool) {
	for r.nbit < n {
		if r.pos >= len(r.in) {
			return 0, false
		}
		r.acc |= uint64(r.in[r.pos]) << r.nbit
		r.pos++
		r.nbit += 8
	}
	mask := uint64(1)<<n - 1
	v := r.acc & mask
	r.acc >>= n
	r.nbit -= n
	return v, true
}

// Pack encodes (cells, side-to-move) into a compact byte string: 2p+2
// five-bit fields followed by one side-to-move bit, per spec.md §4.1 and
// §3.3 (packed_cells size = ceil((5*(2p+2)+1)/8) bytes).
func Pack(pr Params, st State) []byte {
	w := bitWriter{}
	for _, c := range st.Cells {
		w.writeBits(uint64(c), 5)
	}
	var sideBit uint64
	if st.Side == B {
		sideBit = 1
	}
	w.writeBits(sideBit, 1)
	return w.bytes()
}

// Unpack is Pack's exact inverse: pack(unpack(b)) = b and
// unpack(pack(s)) = s for every well-formed input (spec.md §8 law).
func Unpack(pr Params, data []byte) (State, error) {
	numCells := pr.NumCells()
	wantBits := 5*numCells + 1
	wantBytes := (wantBits + 7) / 8
	if len(data) != wantBytes {
		return State{}, errors.Wrapf(ErrMalformedState, "expected %d bytes, got %d", wantBytes, len(data))
	}

	r := bitReader{in: data}
	cells := make([]uint8, numCells)
	for i := range cells {
		v, ok := r.readBits(5)
		if !ok {
			return State{}, errors.Wrap(ErrMalformedState, "truncated cell field")
		}
		cells[i] = uint8(v)
	}
	sideBit, ok := r.readBits(1)
	if !ok {
		return State{}, errors.Wrap(ErrMalformedState, "truncated side-to-move bit")
	}

	side := A
	if sideBit == 1 {
		side = B
	}
	return State{Cells: cells, Side: side}, nil
}
