package layout

import (
	"fmt"
	"math"
	"strings"
	"time"

	"clinicrx/prescription/model"
)

const (
	headerHeight   = 40.0
	accentTop      = 32.0
	topMargin      = 20.0
	panelHeight    = 28.0
	tableRowHeight = 9.0
	noteLineHeight = 6.0
	notesPadding   = 12.0
	// signatureHeight spans from the anchor to the bottom of the name line.
	signatureHeight = 22.0
	footerHeight    = PageHeight - FooterTop
)

// Table column offsets from the left margin.
const (
	colIndex    = 3.0
	colName     = 12.0
	colDosage   = 90.0
	colDuration = 130.0
)

var (
	fontTitle    = Font{Bold: true, Size: 22}
	fontTagline  = Font{Size: 10}
	fontRxMark   = Font{Bold: true, Size: 28}
	fontCaption  = Font{Size: 8}
	fontHeading  = Font{Bold: true, Size: 10}
	fontBody     = Font{Size: 10}
	fontBodyBold = Font{Bold: true, Size: 10}
	fontName     = Font{Bold: true, Size: 11}
	fontSmall    = Font{Size: 9}
	fontSmallB   = Font{Bold: true, Size: 9}
)

// Measurer reports the rendered width of text in millimetres.
type Measurer interface {
	TextWidth(text string, font Font) float64
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(text string, font Font) float64

// TextWidth implements Measurer.
func (f MeasureFunc) TextWidth(text string, font Font) float64 {
	return f(text, font)
}

// ApproxMeasurer estimates proportional font widths at half an em per rune.
var ApproxMeasurer Measurer = MeasureFunc(func(text string, font Font) float64 {
	return float64(len([]rune(text))) * font.Size * 0.5 * 25.4 / 72
})

// Options controls the non-content inputs of Build.
type Options struct {
	Measurer Measurer
	// Now supplies the date when the record carries no creation instant.
	Now func() time.Time
	// Location is the zone the date is printed in.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Measurer == nil {
		o.Measurer = ApproxMeasurer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type builder struct {
	plan    Plan
	page    int
	measure Measurer
}

// Build lays out a prescription. It has no side effects and the same inputs
// always give the same plan.
func Build(record model.ClinicalRecord, patient model.PatientProfile, doctor model.PractitionerProfile, opts Options) Plan {
	opts = opts.withDefaults()
	b := &builder{
		plan:    Plan{Width: PageWidth, Height: PageHeight},
		measure: opts.Measurer,
	}
	b.newPage()

	b.header()
	y := headerHeight + 10
	y = b.practitionerPanel(y, doctor, record.CreatedAt.Or(opts.Now()).In(opts.Location))
	y = b.patientPanel(y, patient)
	y = b.medicineTable(y, record.Medicines)
	if text := record.NoteText(); text != "" {
		y = b.notes(y, text)
	}
	b.plan.FlowY = y
	b.signature(y, doctor)
	b.footers(record.ID)
	return b.plan
}

func (b *builder) newPage() {
	b.plan.Pages = append(b.plan.Pages, Page{})
	b.page = len(b.plan.Pages) - 1
}

func (b *builder) add(el Element) {
	b.plan.Pages[b.page].Elements = append(b.plan.Pages[b.page].Elements, el)
}

func (b *builder) rect(x, y, w, h float64, c Color) {
	b.add(Element{Kind: KindRect, X: x, Y: y, W: w, H: h, Color: c})
}

func (b *builder) roundedRect(x, y, w, h, r float64, c Color) {
	b.add(Element{Kind: KindRoundedRect, X: x, Y: y, W: w, H: h, Radius: r, Color: c})
}

func (b *builder) line(x1, y1, x2, y2 float64, c Color) {
	b.add(Element{Kind: KindLine, X: x1, Y: y1, X2: x2, Y2: y2, Color: c})
}

func (b *builder) text(s string, x, y float64, f Font, c Color, a Align) {
	b.add(Element{Kind: KindText, X: x, Y: y, Text: s, Font: f, Color: c, Align: a})
}

func (b *builder) section(kind SectionKind, page int, top, bottom float64) {
	b.plan.Sections = append(b.plan.Sections, Section{Kind: kind, Page: page, Top: top, Bottom: bottom})
}

func (b *builder) header() {
	b.rect(0, 0, PageWidth, headerHeight, ColorPrimary)
	b.rect(0, accentTop, PageWidth, headerHeight-accentTop, ColorAccent)
	b.text(ProductName, Margin, 18, fontTitle, ColorWhite, AlignLeft)
	b.text(Tagline, Margin, 26, fontTagline, ColorWhite, AlignLeft)
	b.text("Rx", PageWidth-Margin-10, 22, fontRxMark, ColorWhite, AlignRight)
	b.text("PRESCRIPTION", PageWidth-Margin, 30, fontCaption, ColorWhite, AlignRight)
	b.section(SectionHeader, b.page, 0, headerHeight)
}

func (b *builder) practitionerPanel(y float64, doctor model.PractitionerProfile, date time.Time) float64 {
	b.roundedRect(Margin, y, ContentWidth, panelHeight, 3, ColorPanel)

	b.text("Dr. "+orPlaceholder(doctor.Name), Margin+6, y+9, fontName, ColorInk, AlignLeft)
	b.text("Attending Physician", Margin+6, y+16, fontSmall, ColorMuted, AlignLeft)
	credentials := orPlaceholder(doctor.Specialization) + " · " + orPlaceholder(doctor.Qualification)
	b.text(credentials, Margin+6, y+23, fontCaption, ColorMuted, AlignLeft)

	right := PageWidth - Margin - 6
	b.text(date.Format(DateLayout), right, y+9, fontBodyBold, ColorInk, AlignRight)
	b.text("Date of Prescription", right, y+16, fontSmall, ColorMuted, AlignRight)

	b.section(SectionPractitioner, b.page, y, y+panelHeight)
	return y + panelHeight + 8
}

func (b *builder) patientPanel(y float64, patient model.PatientProfile) float64 {
	top := y
	b.rect(Margin, y, ContentWidth, 1, ColorDivider)

	y += 6
	b.text("PATIENT INFORMATION", Margin, y, fontHeading, ColorPrimary, AlignLeft)
	y += 6
	b.line(Margin, y, PageWidth-Margin, y, ColorPrimary)
	y += 6

	col2 := Margin + ContentWidth/2
	age := Placeholder
	if patient.Age != nil {
		age = fmt.Sprintf("%d yrs", *patient.Age)
	}
	b.text("Name:   "+orPlaceholder(patient.Name), Margin, y, fontBody, ColorInk, AlignLeft)
	b.text("Age:    "+age, col2, y, fontBody, ColorInk, AlignLeft)
	y += 7
	b.text("Gender: "+orPlaceholder(patient.Gender), Margin, y, fontBody, ColorInk, AlignLeft)
	b.text("Phone:  "+orPlaceholder(patient.Phone), col2, y, fontBody, ColorInk, AlignLeft)

	b.section(SectionPatient, b.page, top, y+3)
	return y + 14
}

func (b *builder) tableHeader(y float64) {
	b.rect(Margin, y-4, ContentWidth, 10, ColorPrimary)
	b.text("#", Margin+colIndex, y+3, fontSmallB, ColorWhite, AlignLeft)
	b.text("Medicine Name", Margin+colName, y+3, fontSmallB, ColorWhite, AlignLeft)
	b.text("Dosage", Margin+colDosage, y+3, fontSmallB, ColorWhite, AlignLeft)
	b.text("Duration", Margin+colDuration, y+3, fontSmallB, ColorWhite, AlignLeft)
}

func (b *builder) medicineTable(y float64, medicines []model.MedicineEntry) float64 {
	top, startPage := y, b.page
	b.text("PRESCRIBED MEDICINES", Margin, y, fontHeading, ColorPrimary, AlignLeft)
	y += 6
	b.line(Margin, y, PageWidth-Margin, y, ColorPrimary)
	y += 8
	b.tableHeader(y)
	y += 10

	for i, med := range medicines {
		if y+tableRowHeight-3 > BodyLimit {
			b.newPage()
			y = topMargin + 4
			b.tableHeader(y)
			y += 10
		}
		fill := ColorWhite
		if i%2 == 0 {
			fill = ColorRowAlt
		}
		b.rect(Margin, y-3, ContentWidth, tableRowHeight, fill)

		row := MedicineRow{
			Index:    i + 1,
			Name:     orPlaceholder(med.Name),
			Dosage:   orPlaceholder(med.Dosage),
			Duration: orPlaceholder(med.Duration),
			Page:     b.page,
			Y:        y,
		}
		b.text(fmt.Sprintf("%d", row.Index), Margin+colIndex, y+3, fontSmall, ColorInk, AlignLeft)
		b.text(row.Name, Margin+colName, y+3, fontSmall, ColorInk, AlignLeft)
		b.text(row.Dosage, Margin+colDosage, y+3, fontSmall, ColorInk, AlignLeft)
		b.text(row.Duration, Margin+colDuration, y+3, fontSmall, ColorInk, AlignLeft)
		b.plan.MedicineRows = append(b.plan.MedicineRows, row)
		y += tableRowHeight
	}

	b.section(SectionMedicines, startPage, top, y)
	return y + 10
}

func (b *builder) notes(y float64, text string) float64 {
	width := func(s string) float64 { return b.measure.TextWidth(s, fontSmall) }
	lines := Wrap(text, ContentWidth-notesPadding, width)
	b.plan.NotesLines = lines

	// Keep the heading together with at least one line of text.
	if y+14+noteLineHeight+6 > BodyLimit {
		b.newPage()
		y = topMargin
	}
	top, startPage := y, b.page
	b.text("DOCTOR'S NOTES", Margin, y, fontHeading, ColorPrimary, AlignLeft)
	y += 6
	b.line(Margin, y, PageWidth-Margin, y, ColorPrimary)
	y += 8

	remaining := lines
	for len(remaining) > 0 {
		// Block spans (y-4) .. (y-4 + n*lineHeight + 10).
		fit := int(math.Floor((BodyLimit - (y - 4) - 10) / noteLineHeight))
		if fit < 1 {
			b.newPage()
			y = topMargin + 4
			continue
		}
		if fit > len(remaining) {
			fit = len(remaining)
		}
		chunk := remaining[:fit]
		remaining = remaining[fit:]

		blockHeight := float64(len(chunk))*noteLineHeight + 10
		b.roundedRect(Margin, y-4, ContentWidth, blockHeight, 3, ColorRowAlt)
		for _, l := range chunk {
			b.text(l, Margin+6, y+2, fontSmall, ColorInk, AlignLeft)
			y += noteLineHeight
		}
		if len(remaining) > 0 {
			b.newPage()
			y = topMargin + 4
		}
	}
	y += 10

	b.section(SectionNotes, startPage, top, y)
	return y
}

func (b *builder) signature(flowY float64, doctor model.PractitionerProfile) {
	sigY := math.Max(flowY, SignatureMinY)
	if sigY+signatureHeight > BodyLimit {
		b.newPage()
		sigY = math.Max(topMargin, SignatureMinY)
	}
	b.line(Margin, sigY+8, Margin+70, sigY+8, ColorInk)
	b.text("Doctor's Signature", Margin, sigY+14, fontSmall, ColorMuted, AlignLeft)
	b.text("Dr. "+orPlaceholder(doctor.Name), Margin, sigY+20, fontSmall, ColorMuted, AlignLeft)

	b.plan.SignatureY = sigY
	b.plan.SignaturePage = b.page
	b.section(SectionSignature, b.page, sigY, sigY+signatureHeight)
}

func (b *builder) footers(recordID string) {
	systemID := strings.TrimSpace(recordID)
	if systemID == "" {
		systemID = SystemIDPlaceholder
	}
	center := PageWidth / 2
	for i := range b.plan.Pages {
		b.page = i
		b.rect(0, FooterTop, PageWidth, footerHeight, ColorPrimary)
		b.text(ProductName+" – "+Tagline, center, FooterTop+5.5, fontCaption, ColorWhite, AlignCenter)
		b.text(ValidityNotice, center, FooterTop+9.5, fontCaption, ColorWhite, AlignCenter)
		b.text("System ID: "+systemID, center, FooterTop+13.5, fontCaption, ColorWhite, AlignCenter)
		b.section(SectionFooter, i, FooterTop, PageHeight)
	}
}

func orPlaceholder(s string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return Placeholder
}
