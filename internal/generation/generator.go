// Package generation defines the boundary to external language-model
// services. The application core depends only on the Generator interface;
// the gemini platform package provides the real implementation.
package generation

import "context"

// Definition is a child-appropriate explanation of one word.
type Definition struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

// Generator produces definitions for words that entered the bank without one,
// e.g. parent-added custom words.
type Generator interface {
	// Define returns a definition and example sentence for the word, pitched
	// at the given school grade.
	Define(ctx context.Context, word string, grade int) (*Definition, error)
}
