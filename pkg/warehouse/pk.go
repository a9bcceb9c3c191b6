package warehouse

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"time"
)

// NaturalKey is the ordered tuple of primary-key values identifying a row
// before it is hashed into a map-friendly surrogate.
type NaturalKey struct {
	Values []any
}

// SurrogateKey is a deterministic hex digest of a NaturalKey, used as a Go
// map key since []any is not comparable.
type SurrogateKey string

// NewNaturalKey builds a NaturalKey from ordered primary-key values.
func NewNaturalKey(values ...any) *NaturalKey {
	return &NaturalKey{Values: values}
}

// ToSurrogate converts a natural key to a deterministic surrogate key using
// a length-delimited, type-tagged encoding so values of different types or
// with embedded separators never collide.
func (p *NaturalKey) ToSurrogate() SurrogateKey {
	var buf bytes.Buffer
	for _, val := range p.Values {
		if val == nil {
			buf.WriteString("nil:0:")
			continue
		}

		valType := reflect.TypeOf(val)
		typeTag := valType.String()

		var payload []byte
		switch v := val.(type) {
		case string:
			payload = []byte(v)
		case int, int8, int16, int32, int64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(reflect.ValueOf(v).Int()))
			payload = b[:]
		case uint, uint8, uint16, uint32, uint64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], reflect.ValueOf(v).Uint())
			payload = b[:]
		case float32:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
			payload = b[:]
		case float64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
			payload = b[:]
		case bool:
			if v {
				payload = []byte{1}
			} else {
				payload = []byte{0}
			}
		case time.Time:
			payload = []byte(v.UTC().Format(time.RFC3339Nano))
		default:
			payload = []byte(fmt.Sprintf("%v", v))
		}

		buf.WriteString(typeTag)
		buf.WriteString(":")
		buf.WriteString(fmt.Sprintf("%d", len(payload)))
		buf.WriteString(":")
		buf.Write(payload)
	}

	hash := sha256.Sum256(buf.Bytes())
	return SurrogateKey(hex.EncodeToString(hash[:]))
}
