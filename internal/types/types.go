package types

import "encoding/base64"

// Kind identifies which media family a lookup targets.
type Kind int

const (
	KindAvatar Kind = iota
	KindChatImage
	KindVoice
	KindEmoji
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAvatar:
		return "avatar"
	case KindChatImage:
		return "image"
	case KindVoice:
		return "voice"
	case KindEmoji:
		return "emoji"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseKind maps the String form back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindAvatar, KindChatImage, KindVoice, KindEmoji, KindVideo} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Format is the detected container of a payload.
type Format string

const (
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatGIF     Format = "gif"
	FormatWEBP    Format = "webp"
	FormatMP3     Format = "mp3"
	FormatMP4     Format = "mp4"
	FormatUnknown Format = "unknown"
)

// IsImage reports whether f is one of the sniffable image containers.
func (f Format) IsImage() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF, FormatWEBP:
		return true
	}
	return false
}

// ContentType returns a MIME type suitable for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatWEBP:
		return "image/webp"
	case FormatMP3:
		return "audio/mpeg"
	case FormatMP4:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// MediaRequest is one lookup. PrimaryKey is a username, content digest or
// opaque stored path depending on Kind.
type MediaRequest struct {
	Kind           Kind
	PrimaryKey     string
	AuxiliaryPaths []string
}

// MediaResult is the self-contained answer to a MediaRequest. A result with
// no payload and an empty format is the canonical not-found result.
type MediaResult struct {
	Payload []byte
	Format  Format
	// DurationMS is set for voice results only.
	DurationMS int64
	// Path is the on-disk location for results that are referenced rather
	// than inlined (video).
	Path string
}

// NotFound returns the canonical empty result.
func NotFound() MediaResult {
	return MediaResult{}
}

// Found reports whether r carries anything.
func (r MediaResult) Found() bool {
	return len(r.Payload) > 0 || r.Path != ""
}

// Base64 returns the payload in the transport encoding used by renderers.
func (r MediaResult) Base64() string {
	if len(r.Payload) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.Payload)
}

// EmojiDescriptor is the schema row describing a single emoji digest.
type EmojiDescriptor struct {
	Catalog    int
	Name       string
	CDNURL     string
	EncryptURL string
	AESKeyHex  string
}

// HasRemote reports whether the descriptor carries any network source.
func (d EmojiDescriptor) HasRemote() bool {
	return d.CDNURL != "" || d.EncryptURL != ""
}
