package constants

// WithBaseDir overrides the function returning the user configuration directory.
func WithBaseDir(baseDir func() (string, error)) option {
	return func(o *options) {
		o.baseDir = baseDir
	}
}
