package encoding

import (
	"encoding/binary"
	"fmt"
)

// EncodeRLE packs block ids as repeated uvarint pairs (id, run).
func EncodeRLE(ids []uint16) []byte {
	out := make([]byte, 0, 16)
	for i := 0; i < len(ids); {
		b := ids[i]
		run := 1
		for i+run < len(ids) && ids[i+run] == b {
			run++
		}
		out = binary.AppendUvarint(out, uint64(b))
		out = binary.AppendUvarint(out, uint64(run))
		i += run
	}
	return out
}

// DecodeRLE expands exactly want ids. Streams that decode to a different
// length are rejected before allocating past want.
func DecodeRLE(raw []byte, want int) ([]uint16, error) {
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("block id too large: %d", b)
		}
		if run == 0 {
			return nil, fmt.Errorf("zero-length run at %d", i)
		}
		if run > uint64(want-len(out)) {
			return nil, fmt.Errorf("run overflows %d ids", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d ids, want %d", len(out), want)
	}
	return out, nil
}
