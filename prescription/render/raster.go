package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"clinicrx/prescription/layout"
)

// RasterDPI is the resolution of raster output. An A4 page is 1240x1754 px.
const RasterDPI = 150

var (
	fontsOnce   sync.Once
	fontRegular *sfnt.Font
	fontBold    *sfnt.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if fontRegular, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		fontBold, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

// RasterBackend draws plans as a single JPEG with pages stacked top to bottom.
type RasterBackend struct{}

// Draw implements Backend.
func (RasterBackend) Draw(plan layout.Plan) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	if len(plan.Pages) == 0 {
		return nil, fmt.Errorf("plan has no pages")
	}

	pageW := px(plan.Width)
	pageH := px(plan.Height)
	img := image.NewRGBA(image.Rect(0, 0, pageW, pageH*len(plan.Pages)))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	c := &canvas{img: img, faces: map[layout.Font]font.Face{}}
	defer c.close()
	for i, page := range plan.Pages {
		c.offsetY = i * pageH
		for _, el := range page.Elements {
			if err := c.draw(el); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func px(mm float64) int {
	return int(math.Round(mm * RasterDPI / 25.4))
}

type canvas struct {
	img     *image.RGBA
	offsetY int
	// Faces are not safe for concurrent use, so each Draw owns its own set.
	faces map[layout.Font]font.Face
}

func (c *canvas) close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
}

func (c *canvas) face(f layout.Font) (font.Face, error) {
	if face, ok := c.faces[f]; ok {
		return face, nil
	}
	src := fontRegular
	if f.Bold {
		src = fontBold
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    f.Size,
		DPI:     RasterDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face %.0fpt: %w", f.Size, err)
	}
	c.faces[f] = face
	return face, nil
}

func rgba(c layout.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

func (c *canvas) rect(el layout.Element) image.Rectangle {
	return image.Rect(px(el.X), px(el.Y)+c.offsetY, px(el.X+el.W), px(el.Y+el.H)+c.offsetY)
}

func (c *canvas) draw(el layout.Element) error {
	fill := image.NewUniform(rgba(el.Color))
	switch el.Kind {
	case layout.KindRect:
		draw.Draw(c.img, c.rect(el), fill, image.Point{}, draw.Src)
	case layout.KindRoundedRect:
		c.roundedRect(c.rect(el), px(el.Radius), rgba(el.Color))
	case layout.KindLine:
		c.line(el, rgba(el.Color))
	case layout.KindText:
		face, err := c.face(el.Font)
		if err != nil {
			return err
		}
		d := &font.Drawer{Dst: c.img, Src: fill, Face: face}
		x := fixed.I(px(el.X))
		switch el.Align {
		case layout.AlignCenter:
			x -= d.MeasureString(el.Text) / 2
		case layout.AlignRight:
			x -= d.MeasureString(el.Text)
		}
		d.Dot = fixed.Point26_6{X: x, Y: fixed.I(px(el.Y) + c.offsetY)}
		d.DrawString(el.Text)
	}
	return nil
}

func (c *canvas) roundedRect(r image.Rectangle, radius int, col color.RGBA) {
	r = r.Intersect(c.img.Bounds())
	if limit := min(r.Dx(), r.Dy()) / 2; radius > limit {
		radius = limit
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if radius > 0 && outsideCorner(x, y, r, radius) {
				continue
			}
			c.img.SetRGBA(x, y, col)
		}
	}
}

func outsideCorner(x, y int, r image.Rectangle, radius int) bool {
	var cx, cy int
	switch {
	case x < r.Min.X+radius:
		cx = r.Min.X + radius
	case x >= r.Max.X-radius:
		cx = r.Max.X - radius - 1
	default:
		return false
	}
	switch {
	case y < r.Min.Y+radius:
		cy = r.Min.Y + radius
	case y >= r.Max.Y-radius:
		cy = r.Max.Y - radius - 1
	default:
		return false
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy > radius*radius
}

func (c *canvas) line(el layout.Element, col color.RGBA) {
	x0, y0 := float64(px(el.X)), float64(px(el.Y)+c.offsetY)
	x1, y1 := float64(px(el.X2)), float64(px(el.Y2)+c.offsetY)
	steps := int(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))
	if steps == 0 {
		steps = 1
	}
	thickness := max(1, px(0.4))
	bounds := c.img.Bounds()
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(x0 + (x1-x0)*t))
		y := int(math.Round(y0 + (y1-y0)*t))
		for dy := 0; dy < thickness; dy++ {
			if p := (image.Point{X: x, Y: y + dy}); p.In(bounds) {
				c.img.SetRGBA(p.X, p.Y, col)
			}
		}
	}
}
