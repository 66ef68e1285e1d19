package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/domain"
)

// Preprocessor turns an arbitrary raster image into the fixed-canvas
// black/white bitmap the tracer consumes: grayscale, scaled to fit the
// canvas, centered on a white background, then thresholded.
type Preprocessor struct {
	canvasSize  int
	scaleFactor float64
}

func NewPreprocessor(cfg config.PipelineConfig) *Preprocessor {
	return &Preprocessor{
		canvasSize:  cfg.CanvasSize,
		scaleFactor: cfg.ScaleFactor,
	}
}

// Preprocess decodes data and produces the canvas-sized bitmap. Pixels whose
// luminance is below threshold become black, all others white.
func (p *Preprocessor) Preprocess(data []byte, threshold int) (*image.Gray, error) {
	if threshold < 0 || threshold > 255 {
		return nil, domain.InvalidThreshold(fmt.Sprintf("threshold %d outside [0,255]", threshold), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.UnsupportedFormat("cannot decode image", err)
	}

	placed := p.placeOnCanvas(img)
	return Threshold(placed, threshold), nil
}

// placeOnCanvas scales img to fit scaleFactor of the canvas and centers it
// on a white square canvas.
func (p *Preprocessor) placeOnCanvas(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := min(float64(p.canvasSize)/float64(w), float64(p.canvasSize)/float64(h)) * p.scaleFactor
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	resized := imaging.Resize(imaging.Grayscale(img), newW, newH, imaging.Lanczos)
	canvas := imaging.New(p.canvasSize, p.canvasSize, color.White)
	return imaging.PasteCenter(canvas, resized)
}

// Threshold converts img to a 1-bit-per-pixel (stored 8-bit) gray image:
// luminance < threshold maps to black, everything else to white.
func Threshold(img image.Image, threshold int) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			lum := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			if int(lum) < threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// EncodePBM writes img as a binary (P4) PBM, potrace's native input format.
// Any pixel darker than mid-gray is written as black.
func EncodePBM(w io.Writer, img *image.Gray) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	if _, err := fmt.Fprintf(w, "P4\n%d %d\n", width, height); err != nil {
		return err
	}

	row := make([]byte, (width+7)/8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for i := range row {
			row[i] = 0
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			// PBM: 1 bit means black, packed MSB first.
			if img.GrayAt(x, y).Y < 128 {
				col := x - b.Min.X
				row[col/8] |= 1 << (7 - uint(col%8))
			}
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
