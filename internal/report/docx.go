package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// DocxContentType is the MIME type of a rendered document.
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	bulletNumID   = 1
	pageWidthTwip = 9360
)

var packageTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var bulletGlyphs = []string{"•", "◦", "▪"}

// Render serialises doc into a .docx byte slice.
func Render(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderDocx(doc, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderDocx writes doc as a WordprocessingML package. Output is byte-stable
// for identical input.
func RenderDocx(doc *Document, w io.Writer) error {
	if doc == nil {
		return fmt.Errorf("render docx: nil document")
	}
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"docProps/core.xml", coreXML()},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML(doc)},
		{"word/numbering.xml", numberingXML()},
		{"word/document.xml", documentXML(doc)},
	}
	zw := zip.NewWriter(w)
	for _, p := range parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: packageTime})
		if err != nil {
			return fmt.Errorf("render docx: create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(fw, p.body); err != nil {
			return fmt.Errorf("render docx: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("render docx: close: %w", err)
	}
	return nil
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func documentXML(doc *Document) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<w:document xmlns:w="%s" xmlns:r="%s"><w:body>`, nsW, nsR)
	for _, blk := range doc.Blocks {
		switch v := blk.(type) {
		case Paragraph:
			writeParagraph(&b, v)
		case Table:
			writeTable(&b, v)
		}
	}
	if n := len(doc.Blocks); n > 0 {
		if _, ok := doc.Blocks[n-1].(Table); ok {
			b.WriteString(`<w:p/>`)
		}
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>`)
	b.WriteString(`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String()
}

func writeParagraph(b *strings.Builder, p Paragraph) {
	b.WriteString(`<w:p>`)
	var props strings.Builder
	if p.Bulleted {
		fmt.Fprintf(&props, `<w:numPr><w:ilvl w:val="%d"/><w:numId w:val="%d"/></w:numPr>`, min(max(p.Level, 0), len(bulletGlyphs)-1), bulletNumID)
	}
	if p.SpacingBefore > 0 || p.SpacingAfter > 0 {
		fmt.Fprintf(&props, `<w:spacing w:before="%d" w:after="%d"/>`, p.SpacingBefore, p.SpacingAfter)
	}
	if p.Align != AlignLeft {
		fmt.Fprintf(&props, `<w:jc w:val="%s"/>`, p.Align)
	}
	if props.Len() > 0 {
		b.WriteString(`<w:pPr>`)
		b.WriteString(props.String())
		b.WriteString(`</w:pPr>`)
	}
	if p.PageBreak {
		b.WriteString(`<w:r><w:br w:type="page"/></w:r>`)
	}
	for _, r := range p.Runs {
		writeRun(b, r)
	}
	b.WriteString(`</w:p>`)
}

func writeRun(b *strings.Builder, r Run) {
	b.WriteString(`<w:r>`)
	s := r.Style
	var props strings.Builder
	if s.Bold {
		props.WriteString(`<w:b/><w:bCs/>`)
	}
	if s.Italic {
		props.WriteString(`<w:i/><w:iCs/>`)
	}
	if s.AllCaps {
		props.WriteString(`<w:caps/>`)
	}
	if s.Color != "" {
		fmt.Fprintf(&props, `<w:color w:val="%s"/>`, s.Color)
	}
	if s.Size > 0 {
		fmt.Fprintf(&props, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, s.Size, s.Size)
	}
	if s.Highlight != "" {
		fmt.Fprintf(&props, `<w:highlight w:val="%s"/>`, s.Highlight)
	}
	if s.Underline {
		props.WriteString(`<w:u w:val="single"/>`)
	}
	if props.Len() > 0 {
		b.WriteString(`<w:rPr>`)
		b.WriteString(props.String())
		b.WriteString(`</w:rPr>`)
	}
	if r.Text != "" {
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(esc(r.Text))
		b.WriteString(`</w:t>`)
	}
	b.WriteString(`</w:r>`)
}

func writeTable(b *strings.Builder, t Table) {
	cols := max(t.Columns, 1)
	color := t.BorderColor
	if color == "" {
		color = "000000"
	}
	size := t.BorderSize
	if size == 0 {
		size = 4
	}
	b.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="5000" w:type="pct"/><w:tblBorders>`)
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(b, `<w:%s w:val="single" w:sz="%d" w:space="0" w:color="%s"/>`, side, size, color)
	}
	b.WriteString(`</w:tblBorders><w:tblLayout w:type="fixed"/></w:tblPr><w:tblGrid>`)
	for range cols {
		fmt.Fprintf(b, `<w:gridCol w:w="%d"/>`, pageWidthTwip/cols)
	}
	b.WriteString(`</w:tblGrid>`)
	for _, row := range t.Rows {
		b.WriteString(`<w:tr>`)
		if row.MinHeight > 0 {
			fmt.Fprintf(b, `<w:trPr><w:trHeight w:val="%d" w:hRule="atLeast"/></w:trPr>`, row.MinHeight)
		}
		for _, c := range row.Cells {
			span := max(c.Span, 1)
			fmt.Fprintf(b, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/>`, span*(pageWidthTwip/cols))
			if span > 1 {
				fmt.Fprintf(b, `<w:gridSpan w:val="%d"/>`, span)
			}
			if c.Shading != "" {
				fmt.Fprintf(b, `<w:shd w:val="clear" w:color="auto" w:fill="%s"/>`, c.Shading)
			}
			b.WriteString(`</w:tcPr>`)
			writeParagraph(b, Paragraph{Runs: c.Runs, Align: c.Align})
			b.WriteString(`</w:tc>`)
		}
		b.WriteString(`</w:tr>`)
	}
	b.WriteString(`</w:tbl>`)
}

func stylesXML(doc *Document) string {
	font := doc.Font
	if font == "" {
		font = "Calibri"
	}
	size := doc.Size
	if size == 0 {
		size = 22
	}
	f := esc(font)
	return xml.Header + fmt.Sprintf(`<w:styles xmlns:w="%s"><w:docDefaults><w:rPrDefault><w:rPr>`+
		`<w:rFonts w:ascii="%s" w:hAnsi="%s" w:eastAsia="%s" w:cs="%s"/><w:sz w:val="%d"/><w:szCs w:val="%d"/>`+
		`</w:rPr></w:rPrDefault><w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="259" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>`+
		`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>`+
		`<w:style w:type="table" w:default="1" w:styleId="TableNormal"><w:name w:val="Normal Table"/><w:tblPr><w:tblInd w:w="0" w:type="dxa"/>`+
		`<w:tblCellMar><w:top w:w="0" w:type="dxa"/><w:left w:w="108" w:type="dxa"/><w:bottom w:w="0" w:type="dxa"/><w:right w:w="108" w:type="dxa"/></w:tblCellMar></w:tblPr></w:style>`+
		`</w:styles>`, nsW, f, f, f, f, size, size)
}

func numberingXML() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<w:numbering xmlns:w="%s"><w:abstractNum w:abstractNumId="0"><w:multiLevelType w:val="hybridMultilevel"/>`, nsW)
	for lvl, glyph := range bulletGlyphs {
		fmt.Fprintf(&b, `<w:lvl w:ilvl="%d"><w:start w:val="1"/><w:numFmt w:val="bullet"/><w:lvlText w:val="%s"/><w:lvlJc w:val="left"/>`+
			`<w:pPr><w:ind w:left="%d" w:hanging="360"/></w:pPr></w:lvl>`, lvl, glyph, 720*(lvl+1))
	}
	fmt.Fprintf(&b, `</w:abstractNum><w:num w:numId="%d"><w:abstractNumId w:val="0"/></w:num></w:numbering>`, bulletNumID)
	return b.String()
}

func coreXML() string {
	return xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:creator>assessvault</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + packageTime.Format(time.RFC3339) + `</dcterms:created></cp:coreProperties>`
}

var contentTypesXML = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

var packageRelsXML = xml.Header + `<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

var documentRelsXML = xml.Header + `<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>` +
	`</Relationships>`
