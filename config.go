package flashvfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/flash/minio"
)

// Chip types understood by Open.
const (
	ChipMemory = "memory"
	ChipFile   = "file"
	ChipMinIO  = "minio"
)

// ChipConfig describes one flash chip.
type ChipConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Size       int64  `yaml:"size"`
	SectorSize int64  `yaml:"sectorSize"`
	PageSize   int64  `yaml:"pageSize"`

	// Path is the image file of a file chip.
	Path string `yaml:"path"`

	// Endpoint, Bucket and Prefix locate the sectors of a minio chip.
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Secure    bool   `yaml:"secure"`
}

// PartitionConfig places a labelled partition on a chip.
type PartitionConfig struct {
	Label  string `yaml:"label"`
	Chip   string `yaml:"chip"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

// Config is the file form of a registry setup.
type Config struct {
	MaxVolumes int               `yaml:"maxVolumes"`
	Chips      []ChipConfig      `yaml:"chips"`
	Partitions []PartitionConfig `yaml:"partitions"`
	Volumes    []VolumeConfig    `yaml:"volumes"`
}

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrChipsMissing             = errors.New("no chips defined in config")
	ErrDuplicateChip            = errors.New("duplicate chip name in config")
	ErrUnknownChipType          = errors.New("unknown chip type in config")
	ErrUnknownChip              = errors.New("partition references an undefined chip")
	ErrDuplicatePartition       = errors.New("duplicate partition label in config")
	ErrVolumeWithoutPartition   = errors.New("volume has no partition in config")
)

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileUnreadable, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileUnmarshallable, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross references of the configuration.
func (c *Config) Validate() error {
	if len(c.Chips) == 0 {
		return ErrChipsMissing
	}

	chips := make(map[string]bool, len(c.Chips))
	for _, ch := range c.Chips {
		if chips[ch.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateChip, ch.Name)
		}
		chips[ch.Name] = true
		switch ch.Type {
		case ChipMemory, ChipFile, ChipMinIO:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownChipType, ch.Type)
		}
	}

	parts := make(map[string]bool, len(c.Partitions))
	for _, p := range c.Partitions {
		if !chips[p.Chip] {
			return fmt.Errorf("%w: %q on %q", ErrUnknownChip, p.Label, p.Chip)
		}
		if parts[p.Label] {
			return fmt.Errorf("%w: %q", ErrDuplicatePartition, p.Label)
		}
		parts[p.Label] = true
	}

	for _, v := range c.Volumes {
		if !parts[v.Label] {
			return fmt.Errorf("%w: %q", ErrVolumeWithoutPartition, v.Label)
		}
	}
	return nil
}

// openChip builds the chip described by cfg. The closer is nil for chips
// that hold no resources.
func openChip(ctx context.Context, cfg ChipConfig) (flash.Region, io.Closer, error) {
	switch cfg.Type {
	case ChipMemory:
		return flash.NewMemoryChip(cfg.Size, cfg.SectorSize, cfg.PageSize), nil, nil
	case ChipFile:
		c, err := flash.OpenFileChip(cfg.Path, cfg.Size, cfg.SectorSize, cfg.PageSize)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case ChipMinIO:
		client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			return nil, nil, err
		}
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
				return nil, nil, err
			}
		}
		return minio.NewChip(client, cfg.Bucket, cfg.Prefix, cfg.Size, cfg.SectorSize, cfg.PageSize), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownChipType, cfg.Type)
}

// Open builds the chips and partitions of cfg and registers its volumes on a
// new registry. Options given here apply in addition to the partitions from
// cfg. Closing the registry also closes file-backed chips.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	chips := make(map[string]flash.Region, len(cfg.Chips))
	for _, ch := range cfg.Chips {
		region, closer, err := openChip(ctx, ch)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("chip %s: %w", ch.Name, err)
		}
		chips[ch.Name] = region
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	all := make([]Option, 0, len(cfg.Partitions)+len(opts)+1)
	if cfg.MaxVolumes > 0 {
		all = append(all, WithMaxVolumes(cfg.MaxVolumes))
	}
	for _, p := range cfg.Partitions {
		all = append(all, WithPartition(flash.Partition{
			Label:  p.Label,
			Chip:   chips[p.Chip],
			Offset: p.Offset,
			Size:   p.Size,
		}))
	}
	all = append(all, opts...)

	r := New(all...)
	r.closers = closers
	for _, v := range cfg.Volumes {
		if err := ctx.Err(); err != nil {
			_ = r.Close()
			return nil, err
		}
		if _, err := r.RegisterContext(ctx, v); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}
