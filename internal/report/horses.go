package report

import (
	"strconv"

	"assessvault/internal/domain"
)

// HorseTableCaption is the legend printed above the BCS table.
const HorseTableCaption = "Table 1: Summary of horse information. Low Body Condition Scores (BCS) are highlighted in orange " +
	"and high scores in yellow. Normal BCS for horses in this herd are considered to be 4-6/9."

const (
	donkeyPrefix = "(DONKEY) "
	notesPrefix  = "PE findings: "
	notesMissing = "N/A - Not Provided"
)

var horseColumns = []string{"NAME", "BREED", "AGE", "SEX", "COLOR", "TIME ON FARM", "BCS"}

// Band is the display classification of a body condition score.
type Band int

const (
	BandNeutral Band = iota
	BandLow
	BandHigh
)

// Shading returns the cell fill for the band.
func (b Band) Shading() string {
	switch b {
	case BandLow:
		return ShadeLow
	case BandHigh:
		return ShadeHigh
	default:
		return ShadeNeutral
	}
}

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandHigh:
		return "high"
	default:
		return "neutral"
	}
}

// ScoreBand classifies a score. Horses score out of 9 (low below 4, high
// above 6); donkeys out of 5 (low below 3, high above 3).
func ScoreBand(isHorse bool, score float64) Band {
	low, high := 4.0, 6.0
	if !isHorse {
		low, high = 3.0, 3.0
	}
	switch {
	case score < low:
		return BandLow
	case score > high:
		return BandHigh
	default:
		return BandNeutral
	}
}

// SexCode maps full sex names to their single letter code.
func SexCode(s domain.Sex) string {
	switch s {
	case domain.SexStallion:
		return "S"
	case domain.SexMare:
		return "F"
	case domain.SexGelding:
		return "G"
	default:
		return string(s)
	}
}

// ScoreLabel formats the score against its scale, e.g. "5/9".
func ScoreLabel(isHorse bool, score float64) string {
	scale := "/9"
	if !isHorse {
		scale = "/5"
	}
	return strconv.FormatFloat(score, 'f', -1, 64) + scale
}

// DisplayName prefixes donkeys so they stand out in the table.
func DisplayName(h domain.HorseRecord) string {
	if !h.IsHorse {
		return donkeyPrefix + h.Name
	}
	return h.Name
}

// NotesLine is the text of the physical exam row under each animal.
func NotesLine(notes string) string {
	if notes == "" {
		notes = notesMissing
	}
	return notesPrefix + notes
}

// HorseTable lays out one header row, then a data row and a notes row per animal.
func HorseTable(horses []domain.HorseRecord) *Document {
	b := NewBuilder("Calibri", 22)
	b.Add(Paragraph{Runs: []Run{{Text: HorseTableCaption, Style: RunStyle{Italic: true}}}, SpacingAfter: 120})

	header := Row{MinHeight: 400}
	for _, c := range horseColumns {
		header.Cells = append(header.Cells, Cell{Runs: []Run{Bold(c)}, Align: AlignCenter})
	}
	tbl := Table{Columns: len(horseColumns), BorderColor: ColorHeaderRule, BorderSize: 12, Rows: []Row{header}}
	for _, h := range horses {
		tbl.Rows = append(tbl.Rows, horseRow(h), Row{Cells: []Cell{{
			Runs: []Run{Text(NotesLine(h.Notes))},
			Span: len(horseColumns),
		}}})
	}
	b.Add(tbl)
	return b.Document()
}

func horseRow(h domain.HorseRecord) Row {
	cell := func(s string) Cell { return Cell{Runs: []Run{Text(s)}} }
	return Row{Cells: []Cell{
		{Runs: []Run{Bold(DisplayName(h))}},
		cell(h.Breed),
		cell(h.Age.String()),
		cell(SexCode(h.Sex)),
		cell(h.Color),
		cell(h.TimeOnFarm.String() + " " + h.TimeUnit),
		{
			Runs:    []Run{Bold(ScoreLabel(h.IsHorse, h.BCSScore))},
			Shading: ScoreBand(h.IsHorse, h.BCSScore).Shading(),
			Align:   AlignCenter,
		},
	}}
}
