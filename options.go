package reflexio

// DefaultMaxVarLen caps the element count accepted for one
// variable-length field while decoding.
const DefaultMaxVarLen = 1 << 24

// Options configures a Registry.
type Options struct {
	Logger *Logger
	// EnumWidth is the underlying byte width of enums defined with
	// DefineEnum: 1, 2 or 4.
	EnumWidth int
	// MaxVarLen bounds decoded string lengths and vector counts.
	MaxVarLen int
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the options used by NewRegistry before any
// Option is applied.
func DefaultOptions() Options {
	return Options{
		Logger:    NoopLogger(),
		EnumWidth: 4,
		MaxVarLen: DefaultMaxVarLen,
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithEnumWidth sets the default enum width.
func WithEnumWidth(width int) Option {
	return func(o *Options) { o.EnumWidth = width }
}

// WithMaxVarLen sets the decode limit for variable-length fields.
func WithMaxVarLen(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxVarLen = n
		}
	}
}
