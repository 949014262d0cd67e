package model

import (
	"strings"
	"time"
)

// SourceRef is the provenance row every medical fact points at.
type SourceRef struct {
	ID              string    `json:"id"`
	Authority       string    `json:"authority"`
	DocumentTitle   string    `json:"document_title"`
	URL             string    `json:"url,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	EffectiveDate   string    `json:"effective_date,omitempty"`
	RetrievedAt     time.Time `json:"retrieved_at"`
}

// IndicationRow is one approved use of a drug.
type IndicationRow struct {
	ID          string `json:"id"`
	ApprovedUse string `json:"approved_use"`
	SourceID    string `json:"source_id"`
}

// DosageRow holds dosing guidance for a drug.
type DosageRow struct {
	ID                 string `json:"id"`
	AdultDosage        string `json:"adult_dosage,omitempty"`
	PediatricDosage    string `json:"pediatric_dosage,omitempty"`
	RenalAdjustment    string `json:"renal_adjustment,omitempty"`
	HepaticAdjustment  string `json:"hepatic_adjustment,omitempty"`
	OverdoseInfo       string `json:"overdose_info,omitempty"`
	UnderdoseInfo      string `json:"underdose_info,omitempty"`
	AdministrationInfo string `json:"administration_info,omitempty"`
	SourceID           string `json:"source_id"`
}

// SafetyRow holds the safety warnings for a drug.
type SafetyRow struct {
	ID                string     `json:"id"`
	Contraindications string     `json:"contraindications,omitempty"`
	BlackBoxWarnings  string     `json:"black_box_warnings,omitempty"`
	PregnancyRisk     string     `json:"pregnancy_risk,omitempty"`
	LactationRisk     string     `json:"lactation_risk,omitempty"`
	EventCount        *int       `json:"event_count,omitempty"`
	SeriousEventCount *int       `json:"serious_event_count,omitempty"`
	TopReactions      []Reaction `json:"top_reactions,omitempty"`
	SourceID          string     `json:"source_id"`
}

// InteractionRow is a persisted drug-drug interaction.
type InteractionRow struct {
	ID              string   `json:"id"`
	InteractingDrug string   `json:"interacting_drug"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	SourceID        string   `json:"source_id"`
}

// PricingRow holds cost data for a drug. PricingSource is "NADAC" when a
// real unit price was merged in, "estimate" otherwise.
type PricingRow struct {
	ID                 string   `json:"id"`
	ApproximateCost    string   `json:"approximate_cost,omitempty"`
	GenericAvailable   bool     `json:"generic_available"`
	UnitPrice          *float64 `json:"unit_price,omitempty"`
	PriceNDC           string   `json:"price_ndc,omitempty"`
	PriceEffectiveDate string   `json:"price_effective_date,omitempty"`
	PackageDescription string   `json:"package_description,omitempty"`
	PricingSource      string   `json:"pricing_source"`
	SourceID           string   `json:"source_id"`
}

// Record is one verified drug as persisted: a unique generic name owning
// child collections that each carry their own provenance reference.
type Record struct {
	ID                string           `json:"id"`
	GenericName       string           `json:"generic_name"`
	BrandNames        []string         `json:"brand_names,omitempty"`
	DrugClass         string           `json:"drug_class,omitempty"`
	MechanismOfAction string           `json:"mechanism_of_action,omitempty"`
	Source            SourceRef        `json:"source"`
	Indications       []IndicationRow  `json:"indications,omitempty"`
	Dosage            []DosageRow      `json:"dosage,omitempty"`
	Safety            []SafetyRow      `json:"safety,omitempty"`
	Interactions      []InteractionRow `json:"interactions,omitempty"`
	Pricing           []PricingRow     `json:"pricing,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// HasBrand reports whether name matches one of the record's brand names,
// case-insensitively.
func (r *Record) HasBrand(name string) bool {
	for _, b := range r.BrandNames {
		if strings.EqualFold(strings.TrimSpace(b), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
