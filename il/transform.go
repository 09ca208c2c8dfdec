package il

import (
	"sync"

	"github.com/clrhost/clrhost/metadata"
)

var cacheMu sync.Mutex

// Get returns method's lowered body, running the transformer on first
// access and caching the result on method.InterpBody (clrhost §4.3: the
// interpreter never re-lowers a method it has already executed). Methods
// with no body (abstract, extern, internal-call) return a nil LowMethod
// and no error.
func Get(method *metadata.Method) (*LowMethod, error) {
	cacheMu.Lock()
	if lm, ok := method.InterpBody.(*LowMethod); ok {
		cacheMu.Unlock()
		return lm, nil
	}
	cacheMu.Unlock()

	if method.CodeType() != metadata.CodeTypeIL || method.RVA == 0 {
		return nil, nil
	}

	body, err := method.Parent.Image.Image.ReadMethodBody(method.RVA)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	lm, err := Lower(method, body)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	method.InterpBody = lm
	cacheMu.Unlock()
	return lm, nil
}
