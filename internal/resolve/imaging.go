package resolve

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"github.com/gftdcojp/wxmedia/internal/types"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for every re-encoded image.
const JPEGQuality = 50

// Raw avatar bitmaps are square with four bytes per pixel (R, G, B, unused).
const (
	bmSide          = 96
	bmBytesPerPixel = 4
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", types.ErrFailed)
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// toJPEG re-encodes any decodable image as JPEG.
func toJPEG(data []byte) ([]byte, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img)
}

// decodeBM reads a raw avatar bitmap. Pixels beyond the end of data stay
// black; the fourth byte of each pixel is ignored.
func decodeBM(data []byte) (image.Image, error) {
	if len(data) < bmBytesPerPixel {
		return nil, fmt.Errorf("bitmap of %d bytes: %w", len(data), types.ErrFailed)
	}
	img := image.NewRGBA(image.Rect(0, 0, bmSide, bmSide))
	for i := 0; i < bmSide; i++ {
		for j := 0; j < bmSide; j++ {
			off := (i*bmSide + j) * bmBytesPerPixel
			c := color.RGBA{A: 0xff}
			if off+bmBytesPerPixel <= len(data) {
				c.R, c.G, c.B = data[off], data[off+1], data[off+2]
			}
			img.SetRGBA(j, i, c)
		}
	}
	return img, nil
}
