package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/hupe1980/flashvfs/flash"
	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"
)

// eraseParallelism bounds concurrent RemoveObject calls during Erase.
const eraseParallelism = 8

// Chip is a flash.Region made of per-sector objects.
type Chip struct {
	client *minio.Client
	bucket string
	prefix string
	size   int64
	sector int64
	page   int64

	// mu serializes read-modify-write cycles on sectors.
	mu sync.Mutex
}

// NewChip creates a chip of size bytes in bucket under rootPrefix.
func NewChip(client *minio.Client, bucket, rootPrefix string, size, sectorSize, pageSize int64) *Chip {
	return &Chip{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		size:   size,
		sector: sectorSize,
		page:   pageSize,
	}
}

func (c *Chip) key(sector int64) string {
	return path.Join(c.prefix, fmt.Sprintf("%08d", sector))
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// loadSector returns the full contents of one sector.
func (c *Chip) loadSector(ctx context.Context, sector int64) ([]byte, error) {
	buf := make([]byte, c.sector)

	obj, err := c.client.GetObject(ctx, c.bucket, c.key(sector), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return erased(buf), nil
		}
		return nil, err
	}
	defer obj.Close()

	if _, err := io.ReadFull(obj, buf); err != nil {
		// GetObject is lazy; a missing key surfaces on first read.
		if isNotFound(err) {
			return erased(buf), nil
		}
		return nil, err
	}
	return buf, nil
}

func erased(b []byte) []byte {
	for i := range b {
		b[i] = flash.ErasedByte
	}
	return b
}

// ReadAt implements flash.Region.
func (c *Chip) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > c.size {
		return 0, fmt.Errorf("%w: [%d, %d) of %d", flash.ErrOutOfRange, off, off+int64(len(p)), c.size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		sector := pos / c.sector
		data, err := c.loadSector(ctx, sector)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], data[pos-sector*c.sector:])
	}
	return n, nil
}

// WriteAt implements flash.Region.
func (c *Chip) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > c.size {
		return 0, fmt.Errorf("%w: [%d, %d) of %d", flash.ErrOutOfRange, off, off+int64(len(p)), c.size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		sector := pos / c.sector
		data, err := c.loadSector(ctx, sector)
		if err != nil {
			return n, err
		}

		start := pos - sector*c.sector
		end := min(int64(len(data)), start+int64(len(p)-n))
		for i := start; i < end; i++ {
			data[i] &= p[n+int(i-start)]
		}

		_, err = c.client.PutObject(ctx, c.bucket, c.key(sector), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		if err != nil {
			return n, err
		}
		n += int(end - start)
	}
	return n, nil
}

// Erase implements flash.Region by deleting the sector objects.
func (c *Chip) Erase(ctx context.Context, off, size int64) error {
	if off < 0 || size < 0 || off+size > c.size {
		return fmt.Errorf("%w: [%d, %d) of %d", flash.ErrOutOfRange, off, off+size, c.size)
	}
	if off%c.sector != 0 || size%c.sector != 0 {
		return fmt.Errorf("%w: [%d, %d) sector %d", flash.ErrUnaligned, off, off+size, c.sector)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(eraseParallelism)

	for sector := off / c.sector; sector < (off+size)/c.sector; sector++ {
		g.Go(func() error {
			err := c.client.RemoveObject(ctx, c.bucket, c.key(sector), minio.RemoveObjectOptions{})
			if err != nil && !isNotFound(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Size implements flash.Region.
func (c *Chip) Size() int64 { return c.size }

// SectorSize implements flash.Geometry.
func (c *Chip) SectorSize() int64 { return c.sector }

// PageSize implements flash.Geometry.
func (c *Chip) PageSize() int64 { return c.page }
