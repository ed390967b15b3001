package content

import (
	"bytes"
	"io"
	"os"

	"github.com/gftdcojp/wxmedia/internal/types"
)

// HeaderSize is enough leading bytes for every sniffer in this package.
const HeaderSize = 12

// AudioHeaderSize is how many leading bytes are searched for audio markers.
const AudioHeaderSize = 10

var (
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicJPEG = []byte{0xFF, 0xD8}
	magicGIF  = []byte{0x47, 0x49, 0x46}
	magicRIFF = []byte("RIFF")
	magicWEBP = []byte("WEBP")

	// ProprietaryMagic prefixes containers only the external codec can decode.
	ProprietaryMagic = []byte("wxgf")

	markerAMR  = []byte("AMR")
	markerSILK = []byte("SILK")
)

// SniffFormat classifies header by magic prefix.
func SniffFormat(header []byte) types.Format {
	switch {
	case bytes.HasPrefix(header, magicJPEG):
		return types.FormatJPEG
	case bytes.HasPrefix(header, magicPNG):
		return types.FormatPNG
	case bytes.HasPrefix(header, magicGIF):
		return types.FormatGIF
	case len(header) >= 12 && bytes.HasPrefix(header, magicRIFF) && bytes.Equal(header[8:12], magicWEBP):
		return types.FormatWEBP
	}
	return types.FormatUnknown
}

// ReadHeader returns up to n leading bytes of the file at path.
func ReadHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// SniffFile sniffs the file at path. Unreadable files are unknown.
func SniffFile(path string) types.Format {
	header, err := ReadHeader(path, HeaderSize)
	if err != nil {
		return types.FormatUnknown
	}
	return SniffFormat(header)
}

// IsProprietaryImage reports whether b starts with the external codec magic.
func IsProprietaryImage(b []byte) bool {
	return bytes.HasPrefix(b, ProprietaryMagic)
}

// IsProprietaryFile is IsProprietaryImage applied to a file header.
func IsProprietaryFile(path string) bool {
	header, err := ReadHeader(path, len(ProprietaryMagic))
	if err != nil {
		return false
	}
	return IsProprietaryImage(header)
}

// AudioContainer is the result of sniffing a voice clip.
type AudioContainer int

const (
	AudioUnknown AudioContainer = iota
	// AudioAMR is a standard AMR container, transcoded directly.
	AudioAMR
	// AudioSILK is the proprietary speech codec, decoded to PCM first.
	AudioSILK
)

func (a AudioContainer) String() string {
	switch a {
	case AudioAMR:
		return "amr"
	case AudioSILK:
		return "silk"
	default:
		return "unknown"
	}
}

// SniffAudio looks for a container marker anywhere in the first
// AudioHeaderSize bytes. SILK clips carry a leading byte before the marker.
func SniffAudio(header []byte) AudioContainer {
	if len(header) > AudioHeaderSize {
		header = header[:AudioHeaderSize]
	}
	switch {
	case bytes.Contains(header, markerAMR):
		return AudioAMR
	case bytes.Contains(header, markerSILK):
		return AudioSILK
	}
	return AudioUnknown
}
