// Package pool provides object pooling for the inference hot path to
// reduce GC pressure: a fresh vocabulary-sized logits slice and a fresh
// token/text buffer are otherwise allocated on every single-token decode
// step of a generation loop.
//
// Pooled objects:
//   - Logits slices (vocabulary-sized float32, one per generation step)
//   - Token slices (generated output token ids)
//   - Byte buffers (native detokenize scratch space)
//
// Usage:
//
//	logits := pool.GetLogitsSlice(nVocab)
//	defer pool.PutLogitsSlice(logits)
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits maximum capacity, in elements/bytes, kept in each pool
	MaxSize int
}

var globalConfig = PoolConfig{
	Enabled: true,
	MaxSize: 1 << 20, // 1 MiB / 1M elements — a 32k-vocab logits slice or a
	// few KB of generated tokens both sit comfortably under this
}

// Configure sets global pool configuration. Should be called early during
// initialization, before the first Get call establishes pool contents.
func Configure(config PoolConfig) {
	globalConfig = config
	initPools()
}

func initPools() {
	logitsSlicePool = sync.Pool{
		New: func() any {
			return make([]float32, 0, 32000)
		},
	}
	tokenSlicePool = sync.Pool{
		New: func() any {
			return make([]int32, 0, 512)
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 256)
		},
	}
}

// IsEnabled returns whether pooling is active.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Logits Slice Pool
// =============================================================================

var logitsSlicePool = sync.Pool{
	New: func() any {
		return make([]float32, 0, 32000)
	},
}

// GetLogitsSlice returns a float32 slice of length n from the pool, reusing
// existing backing storage when it's large enough.
func GetLogitsSlice(n int) []float32 {
	if !globalConfig.Enabled {
		return make([]float32, n)
	}
	s := logitsSlicePool.Get().([]float32)
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}

// PutLogitsSlice returns s to the pool.
func PutLogitsSlice(s []float32) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	logitsSlicePool.Put(s[:0])
}

// =============================================================================
// Token Slice Pool
// =============================================================================

var tokenSlicePool = sync.Pool{
	New: func() any {
		return make([]int32, 0, 512)
	},
}

// GetTokenSlice returns an empty int32 slice from the pool.
func GetTokenSlice() []int32 {
	if !globalConfig.Enabled {
		return make([]int32, 0, 512)
	}
	return tokenSlicePool.Get().([]int32)[:0]
}

// PutTokenSlice returns s to the pool.
func PutTokenSlice(s []int32) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	tokenSlicePool.Put(s[:0])
}

// =============================================================================
// Byte Buffer Pool
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 256)
	},
}

// GetByteBuffer returns a byte slice of length n from the pool, reusing
// existing backing storage when it's large enough.
func GetByteBuffer(n int) []byte {
	if !globalConfig.Enabled {
		return make([]byte, n)
	}
	b := byteBufferPool.Get().([]byte)
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// PutByteBuffer returns b to the pool.
func PutByteBuffer(b []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(b) > globalConfig.MaxSize {
		return
	}
	byteBufferPool.Put(b[:0])
}
