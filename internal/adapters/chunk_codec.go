package adapters

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"

	"nwbio/internal/types"
)

// encodeChunk packs the values of arr at the on-disk width of dtype and
// compresses the result.  Text is stored as uvarint-prefixed strings.
func encodeChunk(dtype types.DType, arr types.NDArray) ([]byte, error) {
	var buf []byte
	switch v := arr.Values.(type) {
	case []int64:
		width := dtype.Width()
		if !dtype.IsInteger() {
			return nil, fmt.Errorf("integer values cannot be encoded as %s", dtype)
		}
		if err := dtype.CheckRange(v); err != nil {
			return nil, err
		}
		buf = make([]byte, 0, len(v)*width)
		for _, x := range v {
			buf = appendInt(buf, width, x)
		}
	case []float64:
		if !dtype.IsFloat() {
			return nil, fmt.Errorf("float values cannot be encoded as %s", dtype)
		}
		buf = make([]byte, 0, len(v)*dtype.Width())
		for _, x := range v {
			if dtype == types.DTypeFloat32 {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(x)))
				continue
			}
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
		}
	case []string:
		for _, x := range v {
			buf = binary.AppendUvarint(buf, uint64(len(x)))
			buf = append(buf, x...)
		}
	case []bool:
		buf = make([]byte, len(v))
		for i, x := range v {
			if x {
				buf[i] = 1
			}
		}
	default:
		return nil, fmt.Errorf("unsupported array values %T", arr.Values)
	}
	return snappy.Encode(nil, buf), nil
}

func appendInt(buf []byte, width int, x int64) []byte {
	switch width {
	case 1:
		return append(buf, byte(x))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(x))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(x))
	}
	return binary.LittleEndian.AppendUint64(buf, uint64(x))
}

// decodeChunk reverses encodeChunk for count elements.
func decodeChunk(dtype types.DType, count int, compressed []byte) (any, error) {
	buf, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	switch {
	case dtype.IsInteger():
		width := dtype.Width()
		if len(buf) != count*width {
			return nil, fmt.Errorf("chunk holds %d bytes, want %d", len(buf), count*width)
		}
		out := make([]int64, count)
		for i := range out {
			out[i] = readInt(dtype, buf[i*width:])
		}
		if dtype == types.DTypeUint64 {
			if err := dtype.CheckRange(out); err != nil {
				return nil, fmt.Errorf("decode chunk: %w", err)
			}
		}
		return out, nil
	case dtype.IsFloat():
		width := dtype.Width()
		if len(buf) != count*width {
			return nil, fmt.Errorf("chunk holds %d bytes, want %d", len(buf), count*width)
		}
		out := make([]float64, count)
		for i := range out {
			if dtype == types.DTypeFloat32 {
				out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
				continue
			}
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
		return out, nil
	case dtype == types.DTypeBool:
		if len(buf) != count {
			return nil, fmt.Errorf("chunk holds %d bytes, want %d", len(buf), count)
		}
		out := make([]bool, count)
		for i, b := range buf {
			out[i] = b != 0
		}
		return out, nil
	case dtype.IsText():
		out := make([]string, 0, count)
		for len(out) < count {
			n, read := binary.Uvarint(buf)
			if read <= 0 || uint64(len(buf)-read) < n {
				return nil, fmt.Errorf("truncated text chunk")
			}
			out = append(out, string(buf[read:read+int(n)]))
			buf = buf[read+int(n):]
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", dtype)
}

func readInt(dtype types.DType, b []byte) int64 {
	switch dtype {
	case types.DTypeInt8:
		return int64(int8(b[0]))
	case types.DTypeUint8:
		return int64(b[0])
	case types.DTypeInt16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case types.DTypeUint16:
		return int64(binary.LittleEndian.Uint16(b))
	case types.DTypeInt32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case types.DTypeUint32:
		return int64(binary.LittleEndian.Uint32(b))
	}
	return int64(binary.LittleEndian.Uint64(b))
}
