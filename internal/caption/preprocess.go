package caption

import (
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageConfig describes how images are turned into encoder input.
type ImageConfig struct {
	Size          int
	RescaleFactor float32
	Mean          [3]float32
	Std           [3]float32
}

// DefaultImageConfig matches the BLIP base image processor: 384x384 bicubic
// resize, 1/255 rescale and CLIP normalization.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Size:          384,
		RescaleFactor: 1.0 / 255.0,
		Mean:          [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:           [3]float32{0.26862954, 0.26130258, 0.27577711},
	}
}

// LoadImage decodes a JPEG, PNG, GIF, WebP or BMP file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Preprocess resizes and normalizes images into one [N, 3, Size, Size] batch.
func Preprocess(cfg ImageConfig, images ...image.Image) PixelBatch {
	size := cfg.Size
	plane := size * size
	batch := PixelBatch{
		Data:     make([]float32, len(images)*3*plane),
		N:        len(images),
		Channels: 3,
		Height:   size,
		Width:    size,
	}
	for n, img := range images {
		dst := image.NewRGBA(image.Rect(0, 0, size, size))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

		base := n * 3 * plane
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				off := dst.PixOffset(x, y)
				px := dst.Pix[off : off+3]
				for ch := 0; ch < 3; ch++ {
					v := float32(px[ch]) * cfg.RescaleFactor
					batch.Data[base+ch*plane+y*size+x] = (v - cfg.Mean[ch]) / cfg.Std[ch]
				}
			}
		}
	}
	return batch
}
