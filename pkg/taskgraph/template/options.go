package template

// MissingAction specifies how to handle placeholders with no value.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails the expansion with an *UndefinedVariableError.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how missing placeholders are handled.
//
// Default: MissingKeep
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// WithListSeparator sets the separator used to join list values, such as
// APPEND fields.
//
// Default: "\n"
func WithListSeparator(sep string) Option {
	return func(e *Expander) {
		e.listSeparator = sep
	}
}

// WithMaxItems renders only the last n items of list values. Prompts built
// from long histories use this to stay bounded. Zero means no limit.
func WithMaxItems(n int) Option {
	return func(e *Expander) {
		e.maxItems = n
	}
}
