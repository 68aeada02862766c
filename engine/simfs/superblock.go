package simfs

import (
	"encoding/binary"
	"errors"

	"github.com/hupe1980/flashvfs/internal/hash"
)

const (
	sbMagic   uint32 = 0x53464D46 // "FMFS"
	sbVersion uint16 = 1

	sbCodecMax   = 16
	sbHeaderSize = 56
	sbCRCSize    = 4
)

var errBadSuperblock = errors.New("simfs: invalid superblock")

// superblock is the root record pointing at the current metadata image.
//
//	0  magic      u32
//	4  version    u16
//	6  compress   u8
//	7  codec len  u8
//	8  seq        u64
//	16 image len  u32 (stored bytes)
//	20 raw len    u32 (encoded bytes)
//	24 image crc  u32
//	28 block size u32
//	32 blocks     u32
//	36 n image    u32
//	40 codec      [16]byte
//	56 image list u32 * n
//	.. header crc u32
type superblock struct {
	seq         uint64
	compression Compression
	codec       string
	imageLen    uint32
	rawLen      uint32
	imageCRC    uint32
	blockSize   uint32
	blockCount  uint32
	image       []uint32
}

// maxImageBlocks is how many image block pointers fit into one superblock.
func maxImageBlocks(blockSize uint32) int {
	return (int(blockSize) - sbHeaderSize - sbCRCSize) / 4
}

// marshal renders the superblock into a full, erased-padded block.
func (s *superblock) marshal() []byte {
	b := make([]byte, s.blockSize)
	for i := range b {
		b[i] = 0xFF
	}

	le := binary.LittleEndian
	le.PutUint32(b[0:], sbMagic)
	le.PutUint16(b[4:], sbVersion)
	b[6] = byte(s.compression)
	b[7] = byte(len(s.codec))
	le.PutUint64(b[8:], s.seq)
	le.PutUint32(b[16:], s.imageLen)
	le.PutUint32(b[20:], s.rawLen)
	le.PutUint32(b[24:], s.imageCRC)
	le.PutUint32(b[28:], s.blockSize)
	le.PutUint32(b[32:], s.blockCount)
	le.PutUint32(b[36:], uint32(len(s.image)))
	clear(b[40 : 40+sbCodecMax])
	copy(b[40:40+sbCodecMax], s.codec)

	off := sbHeaderSize
	for _, blk := range s.image {
		le.PutUint32(b[off:], blk)
		off += 4
	}
	le.PutUint32(b[off:], hash.CRC32C(b[:off]))
	return b
}

func unmarshalSuperblock(b []byte) (*superblock, error) {
	le := binary.LittleEndian
	if len(b) < sbHeaderSize+sbCRCSize || le.Uint32(b[0:]) != sbMagic || le.Uint16(b[4:]) != sbVersion {
		return nil, errBadSuperblock
	}

	n := int(le.Uint32(b[36:]))
	codecLen := int(b[7])
	if codecLen > sbCodecMax || n > maxImageBlocks(uint32(len(b))) {
		return nil, errBadSuperblock
	}

	off := sbHeaderSize + 4*n
	if le.Uint32(b[off:]) != hash.CRC32C(b[:off]) {
		return nil, errBadSuperblock
	}

	s := &superblock{
		compression: Compression(b[6]),
		codec:       string(b[40 : 40+codecLen]),
		seq:         le.Uint64(b[8:]),
		imageLen:    le.Uint32(b[16:]),
		rawLen:      le.Uint32(b[20:]),
		imageCRC:    le.Uint32(b[24:]),
		blockSize:   le.Uint32(b[28:]),
		blockCount:  le.Uint32(b[32:]),
		image:       make([]uint32, n),
	}
	for i := range s.image {
		s.image[i] = le.Uint32(b[sbHeaderSize+4*i:])
	}
	return s, nil
}
