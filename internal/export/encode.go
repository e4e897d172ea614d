package export

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/oxtoacart/bpool"
)

// DefaultJPEGQuality is used when no quality is requested.
const DefaultJPEGQuality = 92

// rendered heatmaps are large, keep a handful of buffers around
var buffers = bpool.NewBufferPool(8)

var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// EncodePNG returns the lossless PNG encoding of img.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	if err := pngEncoder.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// EncodeJPEG returns the JPEG encoding of img. Quality outside 1..100
// falls back to DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	buf := buffers.Get()
	defer buffers.Put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// Encode writes img to w in a raster format.
func Encode(w io.Writer, f Format, img image.Image, quality int) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatPNG:
		data, err = EncodePNG(img)
	case FormatJPEG:
		data, err = EncodeJPEG(img, quality)
	default:
		return fmt.Errorf("%s is not a raster format", f)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
