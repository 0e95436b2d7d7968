package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Text is a display value that may arrive as a JSON string or number.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*t = Text(fmt.Sprint(b))
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", string(data))
}

func (t Text) String() string { return string(t) }

type Sex string

const (
	SexStallion Sex = "Stallion"
	SexMare     Sex = "Mare"
	SexGelding  Sex = "Gelding"
)

// HorseRecord is one animal on the BCS summary table.
type HorseRecord struct {
	Name       string  `json:"name"`
	Breed      string  `json:"breed"`
	Age        Text    `json:"age"`
	Sex        Sex     `json:"sex"`
	Color      string  `json:"color"`
	TimeOnFarm Text    `json:"timeOnFarm"`
	TimeUnit   string  `json:"timeUnit"`
	IsHorse    bool    `json:"isHorse"`
	BCSScore   float64 `json:"bcsScore"`
	Notes      string  `json:"notes,omitempty"`
}

type ReportMetadata struct {
	ID          Text   `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	FarmName    string `json:"farmName"`
	VetName     string `json:"vetName"`
	VisitDate   string `json:"visitDate"`
}

type Requirement struct {
	Text             string `json:"text"`
	ComplianceStatus string `json:"complianceStatus,omitempty"`
	Findings         string `json:"findings,omitempty"`
}

type Subsection struct {
	Name         string        `json:"name"`
	Requirements []Requirement `json:"requirements"`
}

type Section struct {
	ID          Text         `json:"id"`
	Title       string       `json:"title"`
	Subsections []Subsection `json:"subsections"`
}

type Findings struct {
	Sections []Section `json:"sections"`
}

// ComplianceReport is the input for the narrative visit report.
type ComplianceReport struct {
	Metadata             ReportMetadata `json:"metadata"`
	NonCompliantFindings Findings       `json:"nonCompliantFindings"`
	SideNotes            string         `json:"sideNotes,omitempty"`
}

// FolderDeletion reports which paths a recursive delete removed.
type FolderDeletion struct {
	Folder       string   `json:"folder"`
	DeletedItems []string `json:"deletedItems"`
	Count        int      `json:"count"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	Folder  string `json:"folder,omitempty"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
