package crazyflie

import (
	"encoding/binary"
	"math"
)

// here we have to use interface as the return everywhere since the functions need to fit into a generic map
// everything is little endian

func bytesToUint8(b []byte) interface{} {
	return uint32(b[0])
}

func bytesToUint16(b []byte) interface{} {
	return uint32(binary.LittleEndian.Uint16(b))
}

func bytesToUint32(b []byte) interface{} {
	return binary.LittleEndian.Uint32(b)
}

func bytesToInt8(b []byte) interface{} {
	return int32(int8(b[0]))
}

func bytesToInt16(b []byte) interface{} {
	return int32(int16(binary.LittleEndian.Uint16(b)))
}

func bytesToInt32(b []byte) interface{} {
	return int32(binary.LittleEndian.Uint32(b))
}

func bytesToFloat32(b []byte) interface{} {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func bytesToFloat16(b []byte) interface{} {
	val := uint32(binary.LittleEndian.Uint16(b))

	var fp32 uint32
	s := val >> 15
	e := (val >> 10) & 0x1F

	//All binary16 can be mapped in a binary32
	if e == 0 {
		tmp := int32(15 - 127) // need to do this otherwise go complains of overflow
		e = uint32(tmp)
	}

	if e == 0x1F {
		if (val & 0x03FF) != 0 {
			fp32 = 0x7FC00000 // NaN
		} else if s == 0 {
			fp32 = 0x7F800000
		} else {
			fp32 = 0xFF800000
		}
	} else {
		fp32 = (s << 31) | (uint32(e+127-15) << 23) | (uint32(val&0x3ff) << 13)
	}

	return math.Float32frombits(fp32)
}

func float32ToBytes(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

func uint16ToBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// toFloat64 widens any decoded log value.
func toFloat64(v interface{}) float64 {
	switch x := v.(type) {
	case uint32:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return 0
	}
}
