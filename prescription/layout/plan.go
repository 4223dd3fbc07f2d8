package layout

// Page geometry in millimetres on an A4 portrait page, origin top-left.
const (
	PageWidth    = 210.0
	PageHeight   = 297.0
	Margin       = 20.0
	ContentWidth = PageWidth - 2*Margin

	// SignatureMinY is the lowest offset the signature block is anchored at.
	SignatureMinY = 240.0
	// FooterTop is where the footer band starts on every page.
	FooterTop = 282.0
	// BodyLimit is the lowest Y any body content may reach before a page break.
	BodyLimit = 278.0
)

// Fixed document text.
const (
	Placeholder         = "—"
	ProductName         = "ClinicFlow"
	Tagline             = "Smart Clinic Management System"
	ValidityNotice      = "This prescription is valid for 30 days from the date of issue."
	SystemIDPlaceholder = "N/A"
	DateLayout          = "02 January 2006"
)

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

var (
	ColorPrimary = Color{26, 115, 232}
	ColorAccent  = Color{0, 137, 123}
	ColorWhite   = Color{255, 255, 255}
	ColorInk     = Color{30, 41, 59}
	ColorMuted   = Color{100, 116, 139}
	ColorPanel   = Color{240, 244, 248}
	ColorDivider = Color{230, 244, 255}
	ColorRowAlt  = Color{248, 250, 252}
)

// Font selects weight and size (points) for a text element.
type Font struct {
	Bold bool
	Size float64
}

// Align is the horizontal anchor of a text element relative to its X.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// ElementKind enumerates drawing primitives.
type ElementKind int

const (
	KindRect ElementKind = iota
	KindRoundedRect
	KindLine
	KindText
)

// Element is one drawing instruction. Rects use X, Y, W, H (and Radius for
// rounded rects); lines run from (X, Y) to (X2, Y2); text is placed with its
// baseline at Y. Color is the fill, stroke or text colour depending on Kind.
type Element struct {
	Kind   ElementKind
	X, Y   float64
	W, H   float64
	X2, Y2 float64
	Radius float64
	Color  Color
	Text   string
	Font   Font
	Align  Align
}

// Page holds the elements drawn on one page, in paint order.
type Page struct {
	Elements []Element
}

// SectionKind names a fixed section of the document.
type SectionKind string

const (
	SectionHeader       SectionKind = "header"
	SectionPractitioner SectionKind = "practitioner"
	SectionPatient      SectionKind = "patient"
	SectionMedicines    SectionKind = "medicines"
	SectionNotes        SectionKind = "notes"
	SectionSignature    SectionKind = "signature"
	SectionFooter       SectionKind = "footer"
)

// Section records where a section was placed. Sections spanning a page break
// report the page they start on; Bottom is measured on the page they end on.
type Section struct {
	Kind   SectionKind
	Page   int
	Top    float64
	Bottom float64
}

// MedicineRow is a laid out row of the medicine table.
type MedicineRow struct {
	Index    int
	Name     string
	Dosage   string
	Duration string
	Page     int
	Y        float64
}

// Plan is the complete, backend independent layout of one prescription.
type Plan struct {
	Width        float64
	Height       float64
	Pages        []Page
	Sections     []Section
	MedicineRows []MedicineRow
	NotesLines   []string
	// FlowY is where body content ended, before signature anchoring.
	FlowY         float64
	SignatureY    float64
	SignaturePage int
}

// Section returns the first section of the given kind.
func (p Plan) Section(kind SectionKind) (Section, bool) {
	for _, s := range p.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Texts returns every text string on the plan, page by page.
func (p Plan) Texts() []string {
	var out []string
	for _, page := range p.Pages {
		for _, el := range page.Elements {
			if el.Kind == KindText {
				out = append(out, el.Text)
			}
		}
	}
	return out
}
