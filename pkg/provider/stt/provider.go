// Package stt defines the Provider interface for speech-to-text backends.
//
// Transcription in voxmail is batch oriented: one recorded utterance goes in,
// one transcript comes out. Every failure is reported wrapped in
// [ErrTranscription] so the pipeline can treat any provider error the same
// way.
package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrTranscription wraps every error returned by a Provider.
var ErrTranscription = errors.New("transcription failed")

// Audio is one recorded utterance.
type Audio struct {
	// Data holds the encoded audio. For Format "pcm" it is raw 16-bit signed
	// little-endian samples.
	Data []byte

	// Format is the container format: "wav", "mp3", "webm", "ogg", "m4a" or
	// "pcm". Empty is treated as "wav".
	Format string

	// SampleRate applies to "pcm" only. Defaults to 16000.
	SampleRate int

	// Channels applies to "pcm" only. Defaults to 1.
	Channels int
}

// Provider transcribes a complete utterance.
type Provider interface {
	// Transcribe returns the text spoken in audio. Implementations must wrap
	// failures in ErrTranscription.
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// File returns the bytes to upload and a file name whose extension matches
// the encoded format. Raw PCM is wrapped in a WAV container first, since
// hosted and local transcription servers only accept audio files.
func (a Audio) File() (data []byte, filename string) {
	format := strings.ToLower(strings.TrimPrefix(a.Format, "."))
	switch format {
	case "", "wav":
		return a.Data, "audio.wav"
	case "pcm":
		sr := a.SampleRate
		if sr <= 0 {
			sr = 16000
		}
		ch := a.Channels
		if ch <= 0 {
			ch = 1
		}
		return EncodeWAV(a.Data, sr, ch), "audio.wav"
	default:
		return a.Data, "audio." + format
	}
}

// ContentType returns the MIME type of the file produced by [Audio.File].
func (a Audio) ContentType() string {
	switch strings.ToLower(strings.TrimPrefix(a.Format, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "webm":
		return "audio/webm"
	case "ogg":
		return "audio/ogg"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}
