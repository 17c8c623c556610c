package compress

import (
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/gregorycollins/riegeli/pkg/codec"
)

// Decompression contexts are expensive to allocate, so they are recycled
// through bounded LIFO pools. Contexts above the bound are dropped rather
// than kept alive.

const poolLimit = 4

type zstdPool struct {
	mutex sync.Mutex
	free  []*zstd.Decoder
}

func (p *zstdPool) get() (*zstd.Decoder, error) {
	p.mutex.Lock()
	if n := len(p.free); n > 0 {
		dec := p.free[n-1]
		p.free = p.free[:n-1]
		p.mutex.Unlock()
		return dec, nil
	}
	p.mutex.Unlock()
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, codec.Errorf(codec.Internal, "zstd decoder allocation failed: %v", err)
	}
	return dec, nil
}

func (p *zstdPool) put(dec *zstd.Decoder) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.free) >= poolLimit {
		dec.Close()
		return
	}
	p.free = append(p.free, dec)
}

type brotliPool struct {
	mutex sync.Mutex
	free  []*brotli.Reader
}

func (p *brotliPool) get() *brotli.Reader {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free = p.free[:n-1]
		return r
	}
	return new(brotli.Reader)
}

func (p *brotliPool) put(r *brotli.Reader) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.free) >= poolLimit {
		return
	}
	p.free = append(p.free, r)
}

var (
	zstdDecoders  = &zstdPool{}
	brotliReaders = &brotliPool{}
)
