package loaders

import (
	"fmt"
	"io"
)

// ReadBinary reads a whole binary resource and returns it as little endian words.
// The size must be a multiple of four.
func ReadBinary(r io.Reader) ([]uint32, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("binary resource of %d bytes: %w", len(buf), ErrInvalidContainer)
	}
	return bytesToWords(buf), nil
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := 0; i < len(words); i++ {
		byteIndex := i * 4
		words[i] = 0
		words[i] |= uint32(b[byteIndex])
		words[i] |= uint32(b[byteIndex+1]) << 8
		words[i] |= uint32(b[byteIndex+2]) << 16
		words[i] |= uint32(b[byteIndex+3]) << 24
	}
	return words
}
