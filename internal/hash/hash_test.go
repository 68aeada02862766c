package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDJB2(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 5381},
		{"a", 5381*33 + 'a'},
		{"ab", (5381*33+'a')*33 + 'b'},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DJB2(tt.in), "input %q", tt.in)
	}

	assert.NotEqual(t, DJB2("/a"), DJB2("/b"))
}

func TestCRC32C(t *testing.T) {
	// RFC 3720 check value for "123456789".
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))

	h := NewCRC32C()
	_, _ = h.Write([]byte("1234"))
	_, _ = h.Write([]byte("56789"))
	assert.Equal(t, uint32(0xE3069283), h.Sum32())
}
