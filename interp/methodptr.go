package interp

import (
	"sync"

	"github.com/clrhost/clrhost/metadata"
)

// Method pointers (clrhost §4.4 ldftn/ldvirtftn/calli): the original
// runtime represents a function pointer as the machine address the
// invoker jumps to. This interpreter has no machine code to point at, so
// ldftn/ldvirtftn hand out small sequential integer handles instead and
// calli reverses the lookup through this registry.
var (
	methodPtrMu   sync.Mutex
	methodPtrs    = map[uintptr]*metadata.Method{}
	nextMethodPtr uintptr = 1
)

func registerMethodPtr(m *metadata.Method) uintptr {
	methodPtrMu.Lock()
	defer methodPtrMu.Unlock()
	if m.MethodPtr != 0 {
		return m.MethodPtr
	}
	p := nextMethodPtr
	nextMethodPtr++
	m.MethodPtr = p
	methodPtrs[p] = m
	return p
}

func methodFromPtr(v uint64) *metadata.Method {
	methodPtrMu.Lock()
	defer methodPtrMu.Unlock()
	return methodPtrs[uintptr(v)]
}
