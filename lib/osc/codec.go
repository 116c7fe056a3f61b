package osc

import (
	"encoding/binary"
	"fmt"
	"math"
)

func pad(n int) int {
	return (4 - n%4) % 4
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	buf = append(buf, 0)
	for range pad(len(s) + 1) {
		buf = append(buf, 0)
	}
	return buf
}

// Encode builds an OSC 1.0 message. Supported argument types are int32,
// float32, string, []byte, int64, float64, bool and nil; plain int is sent
// as int32 since that is what the mixer expects for commands.
func Encode(addr string, args ...any) ([]byte, error) {
	if len(addr) == 0 || addr[0] != '/' {
		return nil, fmt.Errorf("osc: invalid address %q", addr)
	}

	typetag := ","
	for _, arg := range args {
		switch v := arg.(type) {
		case int32, int:
			typetag += "i"
		case float32:
			typetag += "f"
		case string:
			typetag += "s"
		case []byte:
			typetag += "b"
		case int64:
			typetag += "h"
		case float64:
			typetag += "d"
		case bool:
			if v {
				typetag += "T"
			} else {
				typetag += "F"
			}
		case nil:
			typetag += "N"
		default:
			return nil, fmt.Errorf("osc: unsupported argument type %T", arg)
		}
	}

	buf := appendString(nil, addr)
	buf = appendString(buf, typetag)

	for _, arg := range args {
		switch v := arg.(type) {
		case int32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(v))
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("osc: int argument %d overflows int32", v)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(int32(v)))
		case float32:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
		case string:
			buf = appendString(buf, v)
		case []byte:
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
			for range pad(len(v)) {
				buf = append(buf, 0)
			}
		case int64:
			buf = binary.BigEndian.AppendUint64(buf, uint64(v))
		case float64:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}

	return buf, nil
}

// Message is a decoded OSC message.
type Message struct {
	Address string
	Args    []any
}

func (m Message) String() string {
	return fmt.Sprintf("%s %v", m.Address, m.Args)
}

// Int returns the first argument as an int32 when it is one.
func (m Message) Int() (int32, bool) {
	if len(m.Args) == 0 {
		return 0, false
	}
	v, ok := m.Args[0].(int32)
	return v, ok
}

// Decode parses a single OSC message. Bundles are not supported.
func Decode(data []byte) (Message, error) {
	if len(data) < 4 {
		return Message{}, fmt.Errorf("osc: message too short")
	}
	if data[0] == '#' {
		return Message{}, fmt.Errorf("osc: bundles not supported")
	}

	end := 0
	for end < len(data) && data[end] != 0 {
		end++
	}
	msg := Message{Address: string(data[:end])}
	pos := end + 1 + pad(end+1)

	if pos >= len(data) || data[pos] != ',' {
		return msg, nil
	}

	ttEnd := pos
	for ttEnd < len(data) && data[ttEnd] != 0 {
		ttEnd++
	}
	typetag := string(data[pos+1 : ttEnd])
	pos = ttEnd + 1 + pad(ttEnd-pos+1)

	for _, t := range typetag {
		switch t {
		case 'i':
			if pos+4 > len(data) {
				return msg, fmt.Errorf("osc: truncated int32")
			}
			msg.Args = append(msg.Args, int32(binary.BigEndian.Uint32(data[pos:])))
			pos += 4
		case 'f':
			if pos+4 > len(data) {
				return msg, fmt.Errorf("osc: truncated float32")
			}
			msg.Args = append(msg.Args, math.Float32frombits(binary.BigEndian.Uint32(data[pos:])))
			pos += 4
		case 's':
			end := pos
			for end < len(data) && data[end] != 0 {
				end++
			}
			msg.Args = append(msg.Args, string(data[pos:end]))
			pos = end + 1 + pad(end-pos+1)
		case 'b':
			if pos+4 > len(data) {
				return msg, fmt.Errorf("osc: truncated blob size")
			}
			size := int(binary.BigEndian.Uint32(data[pos:]))
			pos += 4
			if pos+size > len(data) {
				return msg, fmt.Errorf("osc: truncated blob")
			}
			b := make([]byte, size)
			copy(b, data[pos:pos+size])
			msg.Args = append(msg.Args, b)
			pos += size + pad(size)
		case 'h':
			if pos+8 > len(data) {
				return msg, fmt.Errorf("osc: truncated int64")
			}
			msg.Args = append(msg.Args, int64(binary.BigEndian.Uint64(data[pos:])))
			pos += 8
		case 'd':
			if pos+8 > len(data) {
				return msg, fmt.Errorf("osc: truncated float64")
			}
			msg.Args = append(msg.Args, math.Float64frombits(binary.BigEndian.Uint64(data[pos:])))
			pos += 8
		case 'T':
			msg.Args = append(msg.Args, true)
		case 'F':
			msg.Args = append(msg.Args, false)
		case 'N':
			msg.Args = append(msg.Args, nil)
		default:
			return msg, fmt.Errorf("osc: unknown type tag %q", t)
		}
	}

	return msg, nil
}
