package domain

import "time"

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
)

type DocumentKind string

const (
	DocPlanset     DocumentKind = "planset"
	DocUtilityBill DocumentKind = "utility_bill"
)

// UtilityBillFacts holds structured fields extracted from a utility bill.
// All fields are best effort and may be empty.
type UtilityBillFacts struct {
	CustomerAddress   string `json:"customer_address,omitempty"`
	BillingPeriod     string `json:"billing_period,omitempty"`
	EnergyConsumption string `json:"energy_consumption,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	UtilityCompany    string `json:"utility_company,omitempty"`
}

// ProjectDocument is an embedded document descriptor on a project.
type ProjectDocument struct {
	Kind            DocumentKind      `json:"kind"`
	Filename        string            `json:"filename"`
	StoragePath     string            `json:"storage_path"`
	MimeType        string            `json:"mime_type,omitempty"`
	ExtractedText   string            `json:"extracted_text,omitempty"`
	CustomerAddress string            `json:"customer_address,omitempty"`
	Facts           *UtilityBillFacts `json:"facts,omitempty"`
	UploadedAt      time.Time         `json:"uploaded_at"`
}

// Project is the persisted record produced by a completed intake flow.
// Owned by exactly one user; GuidanceText is empty when generation degraded.
type Project struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	OwnerID          string           `json:"owner_id"`
	JurisdictionName string           `json:"jurisdiction_name"`
	GuidanceText     string           `json:"guidance_text,omitempty"`
	GuidanceOrigin   GuidanceOrigin   `json:"guidance_origin"`
	Status           ProjectStatus    `json:"status"`
	Planset          *ProjectDocument `json:"planset_document,omitempty"`
	UtilityBill      *ProjectDocument `json:"utility_bill_document,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DocumentCount counts attached embedded documents.
func (p *Project) DocumentCount() int {
	count := 0
	if p.Planset != nil {
		count++
	}
	if p.UtilityBill != nil {
		count++
	}
	return count
}
