package report

import (
	"fmt"
	"strings"

	"assessvault/internal/domain"
)

const (
	AllFindingsHeading = "All Findings Combined:"
	NonComplianceLead  = "Based on my findings, the owner is not in compliance with the following requirements:"
	SideNotesHeading   = "Additional Notes:"
)

var codePoints = []string{
	"Shelter",
	"Feed and water to maintain health and vigor",
	"Freedom of movement and exercise for most normal behaviors",
	"The company of other equines",
	"Veterinary care, diagnosis and treatment, disease control and prevention",
	"Emergency preparedness for fire, natural disaster, and the disruption of feed supplies",
	"Hoof care",
	"End of life",
}

var fiveFreedoms = [][2]string{
	{"Freedom from Hunger and Thirst", "By ready access to fresh water and a diet to maintain full health and vigor"},
	{"Freedom from Discomfort", "By providing an appropriate environment including shelter and a comfortable resting area"},
	{"Freedom from Pain, Injury and Disease", "By prevention or rapid diagnosis and treatment"},
	{"Freedom to Express Normal Behavior", "By providing sufficient space, proper facilities and company of the animal's own kind"},
	{"Freedom from Fear and Distress", "By ensuring conditions and treatment which avoid mental suffering"},
}

const (
	purposeText = "The purpose for my visit was to assess the overall health and welfare of the horses on the farm on this day at this time. " +
		`For reference I have used the "Code of Practice for the Care and Handling of Equines" developed by the National Farm Animal Care Council, as well as the `
	actText        = `"PEI Animal Welfare Act."`
	codeLead       = "The Code of Practice for the Care and Handling of Equines states that "
	codeEmphasis   = "the most significant influence on the welfare of equines is the care and management provided by the person(s) responsible for their daily care"
	codeTail       = ". Those responsible for equines should consider the following:"
	freedomsLead   = "An animal's welfare should be considered in terms of the five freedoms:"
	careQuote      = `"All herd sizes require adequate human resources to ensure the observation, care and welfare of individual animals. Neither financial cost nor any other circumstances should result in a delay in treatment or neglect of animals".`
	dutyHeading    = "SECTION 1 - DUTY OF CARE"
	dutyLead       = "CODE 1 refers to DUTY OF CARE stating "
	dutyQuote      = `"Horses, donkeys, and mules can live for 30 years or longer. Ownership of these animals can be a great pleasure, but is also a significant responsibility associated with a long-term commitment of time and money. Owners and staff have a DUTY OF CARE for the animals they are permanently or temporarily responsible for. If an owner leaves the animal in the care of another person, it is the owner's duty to ensure the person is competent and has the necessary authority to act in an emergency."`
	responsibility = "Responsibility for an animal includes having an understanding of their specific health and welfare needs, and having the appropriate knowledge and skills to care for the animal. " +
		"Those responsible will also have to comply with relevant legislation and be aware of the Requirements and Recommended Practices in this Code. " +
		"They should also know when to seek advice from a knowledgeable person."
)

const (
	PlaceholderSectionOne = "<<placeholder: all findings in section 1>>"
	PlaceholderConditions = "<<conditions that day, people who joined, weather>>"
	PlaceholderHerd       = "<<placeholder: total horses, farm conditions, etc.>>"
	PlaceholderLowestBCS  = "<<lowest-BCS-Score-in-herd>>"
	PlaceholderHighestBCS = "<<highest-BCS-Score-herd/9>>"
	PlaceholderMeanBCS    = "<< to be calculated >>"
	PlaceholderRecommend  = "...... <<Enter you recommendation here OR delete this block if NO Recommendation>>."
)

// SectionHeading is the title line for an input section.
func SectionHeading(s domain.Section) string {
	return fmt.Sprintf("SECTION %s – %s", s.ID, s.Title)
}

// AggregatedFindings lists every non-empty finding of a section in
// subsection order, then requirement order.
func AggregatedFindings(s domain.Section) []string {
	var out []string
	for _, sub := range s.Subsections {
		for _, req := range sub.Requirements {
			if req.Findings != "" {
				out = append(out, req.Findings)
			}
		}
	}
	return out
}

// SideNoteLines splits side notes on newlines. Empty notes yield no lines.
func SideNoteLines(notes string) []string {
	if notes == "" {
		return nil
	}
	return strings.Split(notes, "\n")
}

// ComplianceReportDocument lays out the narrative visit report.
func ComplianceReportDocument(r domain.ComplianceReport) *Document {
	b := NewBuilder("Calibri", 22)
	md := r.Metadata

	b.Add(Paragraph{
		Runs:         []Run{{Text: "REPORT OF VISIT TO " + strings.ToUpper(md.FarmName), Style: RunStyle{Bold: true, Size: 32}}},
		Align:        AlignCenter,
		SpacingAfter: 200,
	})
	b.Para(Text("Veterinarian: "), Toned(ToneMetadata, md.VetName))
	b.Para(Text("Visit Date: "), Toned(ToneMetadata, md.VisitDate))
	b.Blank()

	b.Para(Text(purposeText), Bold(actText))
	b.Para(Text(codeLead), Run{Text: codeEmphasis, Style: RunStyle{Bold: true, Underline: true}}, Text(codeTail))
	for _, p := range codePoints {
		b.Bullet(0, Text(p))
	}
	b.Para(Text(freedomsLead))
	for _, f := range fiveFreedoms {
		b.Bullet(0, Bold(f[0]))
		b.Bullet(1, Text(f[1]))
	}
	b.Para(Run{Text: careQuote, Style: RunStyle{Bold: true, Italic: true}})
	b.PageBreak()

	b.Add(Paragraph{
		Runs:          []Run{{Text: dutyHeading, Style: RunStyle{Bold: true, Color: ColorFinding}}},
		SpacingBefore: 200,
		SpacingAfter:  100,
	})
	b.Para(Text(dutyLead), Run{Text: dutyQuote, Style: RunStyle{Italic: true}})
	b.Bullet(0, Text(responsibility))
	b.Para(Toned(TonePlaceholder, PlaceholderSectionOne))
	b.Para(Toned(TonePlaceholder, PlaceholderConditions))
	b.Para(Toned(TonePlaceholder, PlaceholderHerd))

	for _, s := range r.NonCompliantFindings.Sections {
		writeSection(b, s)
	}

	b.Heading("RECOMMENDATIONS:", false)
	b.Para(Text("1. ...."))
	b.Para(Text("2. ...."))

	b.Heading("RECOMMENDED ACTION:", false)
	b.Para(
		Text("Overall, the herd was in poor body condition with BCS ranging from "),
		Toned(TonePlaceholder, PlaceholderLowestBCS),
		Text("/9 to "),
		Toned(TonePlaceholder, PlaceholderHighestBCS),
		Text(". A mean herd BCS of "),
		Toned(TonePlaceholder, PlaceholderMeanBCS),
		Text("/9."),
	)
	b.Para(
		Text("Due to the findings of the investigation and assessment of the animals, it is my recommendation "),
		Toned(TonePlaceholder, PlaceholderRecommend),
	)

	b.Blank()
	b.Para(Text("Sincerely,"))
	b.Para(Bold(md.VetName))
	b.Para(Text("Dated: " + md.VisitDate))

	if lines := SideNoteLines(r.SideNotes); len(lines) > 0 {
		b.PageBreak()
		b.Heading(SideNotesHeading, false)
		for _, l := range lines {
			b.Para(Text(l))
		}
	}
	return b.Document()
}

func writeSection(b *Builder, s domain.Section) {
	b.Heading(SectionHeading(s), true)
	b.Para(Bold(AllFindingsHeading))
	for _, f := range AggregatedFindings(s) {
		b.Para(Toned(ToneFinding, f))
	}
	b.Para(Text(NonComplianceLead))
	for _, sub := range s.Subsections {
		b.Bullet(0,
			Text("Code "),
			Run{Text: sub.Name, Style: RunStyle{Bold: true, Underline: true}},
			Text(" refers to,"),
		)
		for _, req := range sub.Requirements {
			b.Bullet(1,
				Toned(ToneRequirement, `Requirement: "`),
				Toned(ToneRequirement, req.Text),
				Toned(ToneRequirement, `"`),
			)
			if req.Findings != "" {
				b.Bullet(1,
					Toned(ToneRequirement, `Finding: "`),
					Toned(ToneFinding, req.Findings),
					Toned(ToneRequirement, `"`),
				)
			}
		}
	}
}
