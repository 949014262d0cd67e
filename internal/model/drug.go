// Package model defines the shared data types for the drug verification pipeline.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity classifies how dangerous a drug-drug interaction is.
type Severity string

const (
	SeverityContraindicated Severity = "contraindicated"
	SeverityMajor           Severity = "major"
	SeverityModerate        Severity = "moderate"
	SeverityMinor           Severity = "minor"
)

// Rank orders severities so that merge logic can keep the worst case.
// Unknown severities rank as moderate.
func (s Severity) Rank() int {
	switch s {
	case SeverityContraindicated:
		return 4
	case SeverityMajor:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 2
}

// Interaction is one drug-drug interaction entry.
type Interaction struct {
	InteractingDrug string   `json:"interacting_drug"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
}

// Reaction is a single adverse reaction with its FAERS report count.
type Reaction struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

// DrugData is the normalized record every source adapter produces.
// All non-empty clinical fields are attributable to the provenance block
// of this same instance; provenance is never mixed before merge.
type DrugData struct {
	GenericName string   `json:"generic_name"`
	BrandNames  []string `json:"brand_names,omitempty"`

	DrugClass          string   `json:"drug_class,omitempty"`
	MechanismOfAction  string   `json:"mechanism_of_action,omitempty"`
	Indications        []string `json:"indications,omitempty"`
	AdultDosage        string   `json:"adult_dosage,omitempty"`
	PediatricDosage    string   `json:"pediatric_dosage,omitempty"`
	RenalAdjustment    string   `json:"renal_adjustment,omitempty"`
	HepaticAdjustment  string   `json:"hepatic_adjustment,omitempty"`
	OverdoseInfo       string   `json:"overdose_info,omitempty"`
	UnderdoseInfo      string   `json:"underdose_info,omitempty"`
	AdministrationInfo string   `json:"administration_info,omitempty"`

	Contraindications string        `json:"contraindications,omitempty"`
	BlackBoxWarnings  string        `json:"black_box_warnings,omitempty"`
	PregnancyRisk     string        `json:"pregnancy_risk,omitempty"`
	LactationRisk     string        `json:"lactation_risk,omitempty"`
	Interactions      []Interaction `json:"interactions,omitempty"`

	ApproximateCost  string `json:"approximate_cost,omitempty"`
	GenericAvailable *bool  `json:"generic_available,omitempty"`

	// Real acquisition-cost fields, populated by the pricing authority only.
	UnitPrice          *float64 `json:"unit_price,omitempty"`
	PriceNDC           string   `json:"price_ndc,omitempty"`
	PriceUnit          string   `json:"price_unit,omitempty"`
	PriceEffectiveDate string   `json:"price_effective_date,omitempty"`
	PackageDescription string   `json:"package_description,omitempty"`

	// Adverse-event summary from FAERS; only the FDA adapter populates it.
	EventCount        *int       `json:"event_count,omitempty"`
	SeriousEventCount *int       `json:"serious_event_count,omitempty"`
	TopReactions      []Reaction `json:"top_reactions,omitempty"`

	SourceAuthority     string `json:"source_authority"`
	SourceDocumentTitle string `json:"source_document_title"`
	SourceURL           string `json:"source_url"`
	SourceYear          int    `json:"source_year"`
	EffectiveDate       string `json:"effective_date,omitempty"`
	RetrievedAt         string `json:"retrieved_at"`
}

var titleCaser = cases.Title(language.AmericanEnglish)

// CanonicalName normalizes a generic drug name to its stored casing.
func CanonicalName(name string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

// CurrentYear returns the year used for provenance defaults.
func CurrentYear() int {
	return time.Now().UTC().Year()
}
