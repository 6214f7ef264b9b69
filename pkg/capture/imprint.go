package capture

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Image is PNG encoded screenshot data.
type Image []byte

const (
	imprintPadding = 20
	imprintBorder  = 1
	imprintSize    = 14
)

var (
	fontOnce sync.Once
	fontTT   *truetype.Font
	fontErr  error
)

func captionFace() (font.Face, error) {
	fontOnce.Do(func() {
		fontTT, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse font: %w", fontErr)
	}
	return truetype.NewFace(fontTT, &truetype.Options{Size: imprintSize}), nil
}

// Imprint returns a copy of the image with a white band below it holding caption.
func (img Image) Imprint(caption string) (Image, error) {
	decoded, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	face, err := captionFace()
	if err != nil {
		return nil, err
	}

	w := decoded.Bounds().Dx()
	h := decoded.Bounds().Dy() + imprintPadding*2 + imprintBorder
	dc := gg.NewContext(w, h)

	dc.DrawImage(decoded, 0, 0)

	yLine := float64(decoded.Bounds().Dy())
	dc.SetColor(color.Black)
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.SetLineWidth(float64(imprintBorder))
	dc.Stroke()
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine+imprintBorder, float64(w), float64(imprintPadding*2))
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetFontFace(face)
	dc.DrawStringAnchored(caption, float64(w)/2, yLine+float64(imprintPadding), 0.5, 0.3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}
