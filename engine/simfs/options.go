package simfs

import "github.com/hupe1980/flashvfs/codec"

type options struct {
	compression Compression
	codec       codec.Codec
}

// Option configures a FS.
type Option func(*options)

// WithCompression selects the compression applied to metadata images.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCodec selects the codec used for new metadata images.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

func applyOptions(opts []Option) options {
	o := options{
		compression: CompressionLZ4,
		codec:       codec.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
