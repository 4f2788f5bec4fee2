// Package types defines the value types shared between the voxmail providers
// and the internal pipeline packages.
//
// Types that belong to a single component (drafts, dispatch results, resolver
// output) live with that component. Only the cross-cutting structures that
// would otherwise cause import cycles are declared here.
package types

// Role identifies the author of a [Message].
type Role = string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the ordered conversation handed to a generation
// service. The same shape is used for recorded history turns.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role Role `json:"role"`

	// Content is the text of the message.
	Content string `json:"content"`
}

// Contact is a single directory entry.
type Contact struct {
	// Name is the normalised lookup key (lowercase, trimmed).
	Name string `json:"name" yaml:"name" toml:"name"`

	// Address is the email address mail is delivered to.
	Address string `json:"address" yaml:"address" toml:"address"`
}

// Speech is synthesised audio returned by a speech synthesis service.
type Speech struct {
	// Data holds the encoded audio file (e.g. MP3 or WAV bytes).
	Data []byte

	// Format is the container format of Data ("mp3", "wav", ...).
	Format string
}

// MIMEType returns the MIME type matching s.Format. Unknown formats map to
// application/octet-stream.
func (s *Speech) MIMEType() string {
	switch s.Format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
