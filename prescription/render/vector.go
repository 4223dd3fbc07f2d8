package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"clinicrx/prescription/layout"
)

// pdfFontFamily is the Go font family embedded as UTF-8 TrueType, the same
// faces the raster backend draws with.
const pdfFontFamily = "Go"

// registerFonts embeds the regular and bold Go fonts into pdf.
func registerFonts(pdf *fpdf.Fpdf) error {
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "B", gobold.TTF)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register fonts: %w", err)
	}
	return nil
}

// VectorBackend draws plans as A4 PDF documents with embedded Unicode fonts.
type VectorBackend struct {
	// CreationDate pins the document metadata date; zero means now.
	CreationDate time.Time
}

// Draw implements Backend.
func (v VectorBackend) Draw(plan layout.Plan) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: plan.Width, Ht: plan.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetTitle("Prescription", true)
	pdf.SetCreator(layout.ProductName, true)
	if !v.CreationDate.IsZero() {
		pdf.SetCreationDate(v.CreationDate)
		pdf.SetModificationDate(v.CreationDate)
	}
	if err := registerFonts(pdf); err != nil {
		return nil, err
	}

	for _, page := range plan.Pages {
		pdf.AddPage()
		for _, el := range page.Elements {
			drawPDFElement(pdf, el)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawPDFElement(pdf *fpdf.Fpdf, el layout.Element) {
	r, g, b := int(el.Color.R), int(el.Color.G), int(el.Color.B)
	switch el.Kind {
	case layout.KindRect:
		pdf.SetFillColor(r, g, b)
		pdf.Rect(el.X, el.Y, el.W, el.H, "F")
	case layout.KindRoundedRect:
		pdf.SetFillColor(r, g, b)
		pdf.RoundedRect(el.X, el.Y, el.W, el.H, el.Radius, "1234", "F")
	case layout.KindLine:
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(0.4)
		pdf.Line(el.X, el.Y, el.X2, el.Y2)
	case layout.KindText:
		pdf.SetFont(pdfFontFamily, fontStyle(el.Font), el.Font.Size)
		pdf.SetTextColor(r, g, b)
		text := el.Text
		x := el.X
		switch el.Align {
		case layout.AlignCenter:
			x -= pdf.GetStringWidth(text) / 2
		case layout.AlignRight:
			x -= pdf.GetStringWidth(text)
		}
		pdf.Text(x, el.Y, text)
	}
}

func fontStyle(f layout.Font) string {
	if f.Bold {
		return "B"
	}
	return ""
}

// pdfMeasurer measures text with the same metrics the vector backend draws
// with. It is not safe for concurrent use.
type pdfMeasurer struct {
	pdf *fpdf.Fpdf
}

func newPDFMeasurer() (*pdfMeasurer, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	if err := registerFonts(pdf); err != nil {
		return nil, err
	}
	return &pdfMeasurer{pdf: pdf}, nil
}

func (m *pdfMeasurer) TextWidth(text string, font layout.Font) float64 {
	m.pdf.SetFont(pdfFontFamily, fontStyle(font), font.Size)
	return m.pdf.GetStringWidth(text)
}
