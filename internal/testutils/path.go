package testutils

import (
	"path/filepath"
	"runtime"
)

// ModuleRoot returns the path to the module's root directory.
func ModuleRoot() string {
	// p is {MODULE_ROOT}/internal/testutils/path.go
	_, p, _, _ := runtime.Caller(0)
	for range 3 {
		p = filepath.Dir(p)
	}
	return p
}
