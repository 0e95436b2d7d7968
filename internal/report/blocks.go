package report

import "strings"

// Tone is the semantic category of a run of text. Visual styling for each
// tone lives in one place so documents stay consistent.
type Tone int

const (
	ToneBoilerplate Tone = iota
	ToneMetadata
	ToneRequirement
	ToneFinding
	TonePlaceholder
)

const (
	ColorRequirement = "008000"
	ColorFinding     = "0000FF"
	ColorHeaderRule  = "FF0000"

	ShadeLow     = "FFA500"
	ShadeHigh    = "FFFF00"
	ShadeNeutral = "FFFFFF"

	HighlightPlaceholder = "yellow"
)

// RunStyle is the character formatting of a run. Size is in half-points.
type RunStyle struct {
	Bold      bool
	Italic    bool
	Underline bool
	AllCaps   bool
	Size      int
	Color     string
	Highlight string
}

var tones = map[Tone]RunStyle{
	ToneBoilerplate: {},
	ToneMetadata:    {Color: ColorFinding},
	ToneRequirement: {Color: ColorRequirement},
	ToneFinding:     {Color: ColorFinding},
	TonePlaceholder: {Highlight: HighlightPlaceholder},
}

// Style returns the base style for a tone.
func (t Tone) Style() RunStyle { return tones[t] }

// Run is a span of uniformly formatted text.
type Run struct {
	Text  string
	Style RunStyle
}

func Text(s string) Run { return Run{Text: s} }

func Toned(t Tone, s string) Run { return Run{Text: s, Style: t.Style()} }

func Bold(s string) Run { return Run{Text: s, Style: RunStyle{Bold: true}} }

type Align string

const (
	AlignLeft   Align = ""
	AlignCenter Align = "center"
)

// Block is an element of the document body.
type Block interface {
	block()
}

// Paragraph is a body paragraph. Bulleted paragraphs are list items at Level (0 based).
type Paragraph struct {
	Runs          []Run
	Bulleted      bool
	Level         int
	Align         Align
	SpacingBefore int
	SpacingAfter  int
	PageBreak     bool
}

func (Paragraph) block() {}

// PlainText joins the run texts of the paragraph.
func (p Paragraph) PlainText() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Cell is a table cell. Span is the number of grid columns it covers.
type Cell struct {
	Runs    []Run
	Span    int
	Shading string
	Align   Align
}

func (c Cell) PlainText() string {
	return Paragraph{Runs: c.Runs}.PlainText()
}

type Row struct {
	Cells     []Cell
	MinHeight int
}

type Table struct {
	Columns     int
	Rows        []Row
	BorderColor string
	BorderSize  int
}

func (Table) block() {}

// Document is an ordered list of blocks with a default font.
type Document struct {
	Font   string
	Size   int
	Blocks []Block
}

// Paragraphs returns the top level paragraphs in order.
func (d *Document) Paragraphs() []Paragraph {
	var out []Paragraph
	for _, b := range d.Blocks {
		if p, ok := b.(Paragraph); ok {
			out = append(out, p)
		}
	}
	return out
}

// Tables returns the tables in order.
func (d *Document) Tables() []Table {
	var out []Table
	for _, b := range d.Blocks {
		if t, ok := b.(Table); ok {
			out = append(out, t)
		}
	}
	return out
}

// Builder appends blocks to a Document.
type Builder struct {
	doc *Document
}

func NewBuilder(font string, size int) *Builder {
	return &Builder{doc: &Document{Font: font, Size: size}}
}

func (b *Builder) Document() *Document { return b.doc }

func (b *Builder) Add(blk Block) *Builder {
	b.doc.Blocks = append(b.doc.Blocks, blk)
	return b
}

// Para adds a plain paragraph.
func (b *Builder) Para(runs ...Run) *Builder {
	return b.Add(Paragraph{Runs: runs})
}

// Bullet adds a list item at the given level.
func (b *Builder) Bullet(level int, runs ...Run) *Builder {
	return b.Add(Paragraph{Runs: runs, Bulleted: true, Level: level})
}

// Heading adds a bold paragraph with space before it.
func (b *Builder) Heading(text string, caps bool) *Builder {
	return b.Add(Paragraph{
		Runs:          []Run{{Text: text, Style: RunStyle{Bold: true, AllCaps: caps}}},
		SpacingBefore: 200,
		SpacingAfter:  100,
	})
}

// Blank adds an empty paragraph.
func (b *Builder) Blank() *Builder {
	return b.Para()
}

// PageBreak starts a new page.
func (b *Builder) PageBreak() *Builder {
	return b.Add(Paragraph{PageBreak: true})
}
