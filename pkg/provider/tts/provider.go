// Package tts defines the Provider interface for speech synthesis backends.
//
// The assistant flow hands a complete reply to Synthesize and gets back an
// encoded audio file. Synthesis failures never suppress the text reply, so
// callers treat errors from this package as non-fatal.
package tts

import (
	"context"

	"github.com/MrWong99/voxmail/pkg/types"
)

// Provider converts text to speech.
type Provider interface {
	// Synthesize renders text as a single encoded audio file.
	Synthesize(ctx context.Context, text string) (*types.Speech, error)
}
