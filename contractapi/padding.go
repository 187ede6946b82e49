package contractapi

import "bytes"

// Pad appends spaces to data until its length is a multiple of blockSize.
// Trailing whitespace is ignored by JSON decoders, so padded payloads decode
// unchanged.
func Pad(data []byte, blockSize int) []byte {
	if blockSize <= 0 {
		return data
	}
	rem := len(data) % blockSize
	if rem == 0 {
		return data
	}
	return append(data, bytes.Repeat([]byte{' '}, blockSize-rem)...)
}

// Unpad strips trailing padding.
func Unpad(data []byte) []byte {
	return bytes.TrimRight(data, " ")
}
