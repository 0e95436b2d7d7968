package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessvault/internal/domain"
)

func TestScoreBand(t *testing.T) {
	tests := []struct {
		name    string
		isHorse bool
		score   float64
		want    Band
	}{
		{"horse low", true, 3, BandLow},
		{"horse high", true, 7, BandHigh},
		{"horse neutral", true, 5, BandNeutral},
		{"horse lower edge", true, 4, BandNeutral},
		{"horse upper edge", true, 6, BandNeutral},
		{"donkey low", false, 2, BandLow},
		{"donkey high", false, 4, BandHigh},
		{"donkey neutral", false, 3, BandNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreBand(tt.isHorse, tt.score))
		})
	}
	assert.Equal(t, ShadeLow, BandLow.Shading())
	assert.Equal(t, ShadeHigh, BandHigh.Shading())
	assert.Equal(t, ShadeNeutral, BandNeutral.Shading())
}

func TestSexCode(t *testing.T) {
	assert.Equal(t, "S", SexCode(domain.SexStallion))
	assert.Equal(t, "F", SexCode(domain.SexMare))
	assert.Equal(t, "G", SexCode(domain.SexGelding))
	assert.Equal(t, "Jenny", SexCode("Jenny"))
	assert.Equal(t, "F", SexCode(domain.Sex(SexCode(domain.SexMare))), "codes are left alone")
}

func TestHorseTableRows(t *testing.T) {
	horses := []domain.HorseRecord{
		{Name: "Blaze", Breed: "Arabian", Age: "12", Sex: domain.SexMare, Color: "Bay", TimeOnFarm: "3", TimeUnit: "years", IsHorse: true, BCSScore: 3, Notes: "Thin over ribs"},
		{Name: "Eeyore", Breed: "Standard", Age: "8", Sex: domain.SexGelding, Color: "Grey", TimeOnFarm: "6", TimeUnit: "months", IsHorse: false, BCSScore: 3.5},
	}
	doc := HorseTable(horses)

	paras := doc.Paragraphs()
	require.NotEmpty(t, paras)
	assert.Equal(t, HorseTableCaption, paras[0].PlainText())

	tables := doc.Tables()
	require.Len(t, tables, 1)
	tbl := tables[0]
	require.Len(t, tbl.Rows, 5)

	var header []string
	for _, c := range tbl.Rows[0].Cells {
		header = append(header, c.PlainText())
		assert.True(t, c.Runs[0].Style.Bold)
	}
	assert.Equal(t, []string{"NAME", "BREED", "AGE", "SEX", "COLOR", "TIME ON FARM", "BCS"}, header)

	blaze := tbl.Rows[1].Cells
	require.Len(t, blaze, 7)
	assert.Equal(t, "Blaze", blaze[0].PlainText())
	assert.Equal(t, "F", blaze[3].PlainText())
	assert.Equal(t, "3 years", blaze[5].PlainText())
	assert.Equal(t, "3/9", blaze[6].PlainText())
	assert.Equal(t, ShadeLow, blaze[6].Shading)

	notes := tbl.Rows[2].Cells
	require.Len(t, notes, 1)
	assert.Equal(t, 7, notes[0].Span)
	assert.Equal(t, "PE findings: Thin over ribs", notes[0].PlainText())

	eeyore := tbl.Rows[3].Cells
	assert.Equal(t, "(DONKEY) Eeyore", eeyore[0].PlainText())
	assert.Equal(t, "G", eeyore[3].PlainText())
	assert.Equal(t, "6 months", eeyore[5].PlainText())
	assert.Equal(t, "3.5/5", eeyore[6].PlainText())
	assert.Equal(t, ShadeHigh, eeyore[6].Shading)
	assert.Equal(t, "PE findings: N/A - Not Provided", tbl.Rows[4].Cells[0].PlainText())
}

func sampleReport() domain.ComplianceReport {
	return domain.ComplianceReport{
		Metadata: domain.ReportMetadata{FarmName: "Green Acres", VetName: "Dr. Lee", VisitDate: "2024-05-01"},
		NonCompliantFindings: domain.Findings{Sections: []domain.Section{{
			ID:    "4",
			Title: "Feed and Water",
			Subsections: []domain.Subsection{
				{Name: "4.1", Requirements: []domain.Requirement{{Text: "Horses must have access to water", Findings: "Trough was frozen"}}},
				{Name: "4.2", Requirements: []domain.Requirement{{Text: "Feed must be adequate"}}},
			},
		}}},
	}
}

func paragraphTexts(doc *Document) []string {
	var out []string
	for _, p := range doc.Paragraphs() {
		out = append(out, p.PlainText())
	}
	return out
}

func indexOf(items []string, want string) int {
	for i, s := range items {
		if s == want {
			return i
		}
	}
	return -1
}

func TestComplianceSectionBreakdown(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, []string{"Trough was frozen"}, AggregatedFindings(r.NonCompliantFindings.Sections[0]))

	doc := ComplianceReportDocument(r)
	texts := paragraphTexts(doc)
	assert.Equal(t, "REPORT OF VISIT TO GREEN ACRES", texts[0])

	head := indexOf(texts, "SECTION 4 – Feed and Water")
	require.GreaterOrEqual(t, head, 0)
	assert.Equal(t, AllFindingsHeading, texts[head+1])
	assert.Equal(t, "Trough was frozen", texts[head+2])
	assert.Equal(t, NonComplianceLead, texts[head+3])
	assert.Equal(t, "Code 4.1 refers to,", texts[head+4])
	assert.Equal(t, `Requirement: "Horses must have access to water"`, texts[head+5])
	assert.Equal(t, `Finding: "Trough was frozen"`, texts[head+6])
	assert.Equal(t, "Code 4.2 refers to,", texts[head+7])
	assert.Equal(t, `Requirement: "Feed must be adequate"`, texts[head+8])
	assert.Equal(t, "RECOMMENDATIONS:", texts[head+9])

	paras := doc.Paragraphs()
	finding := paras[head+6]
	assert.Equal(t, ColorRequirement, finding.Runs[0].Style.Color)
	assert.Equal(t, ColorFinding, finding.Runs[1].Style.Color)
	assert.True(t, paras[head+5].Bulleted)
	assert.Equal(t, 1, paras[head+5].Level)
	assert.Equal(t, -1, indexOf(texts, SideNotesHeading))
}

func TestComplianceSideNotes(t *testing.T) {
	r := sampleReport()
	r.SideNotes = "line1\nline2\n\nline3"
	assert.Equal(t, []string{"line1", "line2", "", "line3"}, SideNoteLines(r.SideNotes))

	texts := paragraphTexts(ComplianceReportDocument(r))
	at := indexOf(texts, SideNotesHeading)
	require.GreaterOrEqual(t, at, 0)
	assert.Equal(t, []string{"line1", "line2", "", "line3"}, texts[at+1:])
}

func TestCompliancePlaceholdersHighlighted(t *testing.T) {
	doc := ComplianceReportDocument(sampleReport())
	var highlighted []string
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs {
			if r.Style.Highlight == HighlightPlaceholder {
				highlighted = append(highlighted, r.Text)
			}
		}
	}
	assert.Contains(t, highlighted, PlaceholderSectionOne)
	assert.Contains(t, highlighted, PlaceholderMeanBCS)
	assert.Contains(t, highlighted, PlaceholderRecommend)
}

func readPart(t *testing.T, docx []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}
	t.Fatalf("part %s missing", name)
	return ""
}

func TestRenderDocxPackage(t *testing.T) {
	doc := ComplianceReportDocument(sampleReport())
	out, err := Render(doc)
	require.NoError(t, err)

	body := readPart(t, out, "word/document.xml")
	assert.NoError(t, xml.Unmarshal([]byte(body), new(any)), "document.xml is well formed")
	assert.Contains(t, body, `<w:color w:val="008000"/>`)
	assert.Contains(t, body, `<w:highlight w:val="yellow"/>`)
	assert.Contains(t, body, `<w:br w:type="page"/>`)
	assert.Contains(t, body, "&lt;&lt;placeholder: all findings in section 1&gt;&gt;")
	assert.Contains(t, readPart(t, out, "word/styles.xml"), `w:ascii="Calibri"`)
	assert.Contains(t, readPart(t, out, "[Content_Types].xml"), "wordprocessingml.document.main+xml")

	again, err := Render(doc)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRenderHorseTableShading(t *testing.T) {
	out, err := GenerateHorseTable([]byte(`[{"name":"Ace","isHorse":true,"bcsScore":8,"age":4,"timeOnFarm":"2","timeUnit":"weeks","sex":"Stallion"}]`))
	require.NoError(t, err)
	body := readPart(t, out, "word/document.xml")
	assert.Contains(t, body, `w:fill="FFFF00"`)
	assert.Contains(t, body, `<w:gridSpan w:val="7"/>`)
	assert.Contains(t, body, ">8/9<")
	assert.Contains(t, body, ">2 weeks<")
	assert.True(t, strings.Contains(body, ">S<"))
}

func TestDetectPayload(t *testing.T) {
	assert.Equal(t, PayloadHorses, DetectPayload([]byte(` [{"name":"a"}]`)))
	assert.Equal(t, PayloadReport, DetectPayload([]byte(`{"metadata":{},"nonCompliantFindings":{"sections":[]}}`)))
	assert.Equal(t, PayloadUnknown, DetectPayload([]byte(`{"hello":"world"}`)))
	assert.Equal(t, PayloadUnknown, DetectPayload([]byte(`not json`)))
	assert.Equal(t, PayloadHorses, DetectPayload([]byte(`"[{\"name\":\"a\"}]"`)), "string wrapped JSON is unwrapped")
}

func TestDecodeRejectsInvalidPayload(t *testing.T) {
	_, err := DecodeHorses([]byte(`[{"name":"a","isHorse":"yes","bcsScore":3}]`))
	require.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "isHorse")

	_, err = DecodeComplianceReport([]byte(`{"metadata":{"farmName":"x"},"nonCompliantFindings":{"sections":[]}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = Generate([]byte(`{"hello":"world"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeComplianceReportNumericID(t *testing.T) {
	r, err := DecodeComplianceReport([]byte(`{
		"metadata":{"farmName":"f","vetName":"v","visitDate":"d"},
		"nonCompliantFindings":{"sections":[{"id":3,"title":"Shelter","subsections":[]}]},
		"sideNotes":null
	}`))
	require.NoError(t, err)
	assert.Equal(t, "SECTION 3 – Shelter", SectionHeading(r.NonCompliantFindings.Sections[0]))
}

func TestDecodeReportMetadataKeepsIdentity(t *testing.T) {
	in := []byte(`{
		"metadata":{"id":"a1b2","displayName":"Spring visit","farmName":"f","vetName":"v","visitDate":"d"},
		"nonCompliantFindings":{"sections":[]}
	}`)
	r, err := DecodeComplianceReport(in)
	require.NoError(t, err)
	assert.Equal(t, domain.Text("a1b2"), r.Metadata.ID)
	assert.Equal(t, "Spring visit", r.Metadata.DisplayName)

	out, err := json.Marshal(r.Metadata)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1b2","displayName":"Spring visit","farmName":"f","vetName":"v","visitDate":"d"}`, string(out))
}

func TestHorseWithoutIsHorseIsDonkey(t *testing.T) {
	horses, err := DecodeHorses([]byte(`[{"name":"Eeyore","bcsScore":4}]`))
	require.NoError(t, err)
	require.Len(t, horses, 1)
	assert.False(t, horses[0].IsHorse)
	assert.Equal(t, "(DONKEY) Eeyore", DisplayName(horses[0]))
	assert.Equal(t, "4/5", ScoreLabel(horses[0].IsHorse, horses[0].BCSScore))
	assert.Equal(t, BandHigh, ScoreBand(horses[0].IsHorse, horses[0].BCSScore))
}

func TestConvert(t *testing.T) {
	c, ok, err := Convert("visit/horses.json", "", []byte(`[{"name":"Ace","isHorse":true,"bcsScore":5}]`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "visit/horses.docx", c.Name)
	assert.Equal(t, PayloadHorses, c.Kind)
	assert.NotEmpty(t, c.Data)

	_, ok, err = Convert("notes.json", "application/json", []byte(`{"free":"form"}`))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Convert("photo.jpg", "image/jpeg", []byte{0xff})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Convert("bad.json", "", []byte(`[{"name":1}]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, ok)
}

func TestConvertByContentType(t *testing.T) {
	horses := []byte(`[{"name":"Ace","isHorse":true,"bcsScore":5}]`)
	for _, ct := range []string{"application/json", "application/json; charset=utf-8", "application/vnd.assessment+json", "text/json"} {
		c, ok, err := Convert("farm/horses", ct, horses)
		require.NoError(t, err, ct)
		require.True(t, ok, ct)
		assert.Equal(t, "farm/horses.docx", c.Name, ct)
		assert.Equal(t, PayloadHorses, c.Kind, ct)
	}

	_, ok, err := Convert("farm/horses", "text/plain", horses)
	assert.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = Convert("farm/horses", "", horses)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestIsJSONContentType(t *testing.T) {
	assert.True(t, IsJSONContentType("Application/JSON"))
	assert.True(t, IsJSONContentType("application/ld+json"))
	assert.False(t, IsJSONContentType("application/jsonp"))
	assert.False(t, IsJSONContentType(""))
	assert.False(t, IsJSONContentType("text/plain"))
}

func TestDocxName(t *testing.T) {
	assert.Equal(t, "a.docx", DocxName("a.json"))
	assert.Equal(t, "a.json.docx", DocxName("a.json.json"))
	assert.Equal(t, "json-notes.txt.docx", DocxName("json-notes.txt"))
	assert.Equal(t, "horses.docx", DocxName("horses"))
	assert.Equal(t, "B.docx", DocxName("B.JSON"))
}
