package generation

import "errors"

// Common errors returned by generators.
var (
	// ErrGenerationFailed is returned when definition generation fails outright.
	ErrGenerationFailed = errors.New("failed to generate definition")

	// ErrInvalidResponse is returned when the model's response cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model refuses the content.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors worth retrying.
	ErrTransientFailure = errors.New("transient error during definition generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
