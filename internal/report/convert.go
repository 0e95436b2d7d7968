package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"assessvault/internal/domain"
)

// PayloadKind identifies which document a JSON payload describes.
type PayloadKind int

const (
	PayloadUnknown PayloadKind = iota
	PayloadHorses
	PayloadReport
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadHorses:
		return "horse_table"
	case PayloadReport:
		return "compliance_report"
	default:
		return "unknown"
	}
}

// unwrap returns the inner text when data is a JSON string holding JSON.
func unwrap(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return bytes.TrimSpace([]byte(inner)), nil
}

// DetectPayload reports whether data is a horse list, a compliance report or neither.
func DetectPayload(data []byte) PayloadKind {
	body, err := unwrap(data)
	if err != nil || len(body) == 0 {
		return PayloadUnknown
	}
	switch body[0] {
	case '[':
		if json.Valid(body) {
			return PayloadHorses
		}
	case '{':
		var keys map[string]json.RawMessage
		if json.Unmarshal(body, &keys) == nil {
			if _, ok := keys["nonCompliantFindings"]; ok {
				return PayloadReport
			}
		}
	}
	return PayloadUnknown
}

// DecodeHorses validates and parses a horse list.
func DecodeHorses(data []byte) ([]domain.HorseRecord, error) {
	body, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	if err := validate("horses", horsesValidator, body); err != nil {
		return nil, err
	}
	var horses []domain.HorseRecord
	if err := json.Unmarshal(body, &horses); err != nil {
		return nil, fmt.Errorf("%w: horses: %v", ErrInvalidPayload, err)
	}
	return horses, nil
}

// DecodeComplianceReport validates and parses a compliance report.
func DecodeComplianceReport(data []byte) (domain.ComplianceReport, error) {
	var r domain.ComplianceReport
	body, err := unwrap(data)
	if err != nil {
		return r, err
	}
	if err := validate("compliance report", reportValidator, body); err != nil {
		return r, err
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("%w: compliance report: %v", ErrInvalidPayload, err)
	}
	return r, nil
}

// GenerateHorseTable renders a horse list payload to .docx bytes.
func GenerateHorseTable(data []byte) ([]byte, error) {
	horses, err := DecodeHorses(data)
	if err != nil {
		return nil, err
	}
	return Render(HorseTable(horses))
}

// GenerateComplianceReport renders a compliance report payload to .docx bytes.
func GenerateComplianceReport(data []byte) ([]byte, error) {
	r, err := DecodeComplianceReport(data)
	if err != nil {
		return nil, err
	}
	return Render(ComplianceReportDocument(r))
}

// Generate renders data according to its detected kind.
func Generate(data []byte) ([]byte, PayloadKind, error) {
	kind := DetectPayload(data)
	var (
		doc []byte
		err error
	)
	switch kind {
	case PayloadHorses:
		doc, err = GenerateHorseTable(data)
	case PayloadReport:
		doc, err = GenerateComplianceReport(data)
	default:
		return nil, kind, fmt.Errorf("%w: unrecognised document payload", ErrInvalidPayload)
	}
	return doc, kind, err
}

// IsJSONName reports whether name carries a .json suffix.
func IsJSONName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}

// IsJSONContentType reports whether contentType is application/json,
// text/json or a +json structured syntax type.
func IsJSONContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "text/json" || strings.HasSuffix(mt, "+json")
}

// DocxName replaces a trailing .json suffix with .docx, or appends .docx.
func DocxName(name string) string {
	if IsJSONName(name) {
		return name[:len(name)-len(".json")] + ".docx"
	}
	return name + ".docx"
}

// Converted is the result of converting a stored JSON file.
type Converted struct {
	Name string
	Kind PayloadKind
	Data []byte
}

// Convert turns a recognised JSON file into a .docx. A file is JSON when
// its name ends in .json or contentType says so. ok is false when the file
// is not JSON or its payload is not a known document; callers keep the
// original bytes in that case.
func Convert(name, contentType string, data []byte) (c Converted, ok bool, err error) {
	if !IsJSONName(name) && !IsJSONContentType(contentType) {
		return Converted{}, false, nil
	}
	if DetectPayload(data) == PayloadUnknown {
		return Converted{}, false, nil
	}
	doc, kind, err := Generate(data)
	if err != nil {
		return Converted{}, false, fmt.Errorf("convert %s: %w", name, err)
	}
	return Converted{Name: DocxName(name), Kind: kind, Data: doc}, true, nil
}
