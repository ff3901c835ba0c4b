// Package mempool pools the float32 buffers that back model input tensors.
// A detector frame at the default input size is 3*640*640 floats, so
// reusing buffers keeps the per-frame allocation flat.
package mempool

import (
	"sync"
)

const classStep = 1024

var float32Pools sync.Map // size class (int) -> *sync.Pool

// sizeClass rounds n up to the next multiple of classStep.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := float32Pools.Load(cls); ok {
		return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Its contents are unspecified;
// callers that need zeros must clear it. Return it with PutFloat32.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	buf, ok := poolFor(cls).Get().([]float32)
	if !ok || cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 hands buf back to its pool. Buffers whose capacity is not a
// size class (not obtained from GetFloat32) are dropped. Nil is ignored.
func PutFloat32(buf []float32) {
	c := cap(buf)
	if c == 0 || c%classStep != 0 {
		return
	}
	poolFor(c).Put(buf[:c]) //nolint:staticcheck // slices are the pooled value
}
