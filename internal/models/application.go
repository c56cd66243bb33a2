// internal/models/application.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"pmc-registration/internal/workflow"
)

// Application is a registration request as stored in postgres.
type Application struct {
	ID                     string                `json:"id" db:"id"`
	ApplicationNumber      string                `json:"applicationNumber" db:"application_number"`
	ApplicantID            string                `json:"applicantId" db:"applicant_id"`
	FirstName              string                `json:"firstName" db:"first_name"`
	MiddleName             string                `json:"middleName,omitempty" db:"middle_name"`
	LastName               string                `json:"lastName" db:"last_name"`
	MotherName             string                `json:"motherName,omitempty" db:"mother_name"`
	Email                  string                `json:"email" db:"email"`
	Mobile                 string                `json:"mobile" db:"mobile"`
	Gender                 string                `json:"gender,omitempty" db:"gender"`
	BloodGroup             string                `json:"bloodGroup,omitempty" db:"blood_group"`
	Height                 float64               `json:"height,omitempty" db:"height"`
	DateOfBirth            *time.Time            `json:"dateOfBirth,omitempty" db:"date_of_birth"`
	PermanentAddress       Address               `json:"permanentAddress" db:"permanent_address"`
	CurrentAddress         Address               `json:"currentAddress" db:"current_address"`
	PositionType           workflow.PositionType `json:"positionType" db:"position_type"`
	CurrentStage           workflow.Stage        `json:"currentStage" db:"current_stage"`
	AppointmentDate        *time.Time            `json:"appointmentDate,omitempty" db:"appointment_date"`
	CertificateNumber      *string               `json:"certificateNumber,omitempty" db:"certificate_number"`
	CertificatePath        *string               `json:"certificatePath,omitempty" db:"certificate_path"`
	IsCertificateGenerated bool                  `json:"isCertificateGenerated" db:"is_certificate_generated"`
	RecommendedFormPath    *string               `json:"recommendedFormPath,omitempty" db:"recommended_form_path"`
	CreatedAt              time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time             `json:"updatedAt" db:"updated_at"`

	Documents      []Document          `json:"documents,omitempty" db:"-"`
	Qualifications []Qualification     `json:"qualifications,omitempty" db:"-"`
	Experiences    []Experience        `json:"experiences,omitempty" db:"-"`
	Rejection      *workflow.Rejection `json:"rejection,omitempty" db:"-"`
}

// Status is derived from the stage; it is never stored.
func (a *Application) Status() string {
	return a.CurrentStage.Status()
}

// FullName joins the non-empty name parts.
func (a *Application) FullName() string {
	name := a.FirstName
	if a.MiddleName != "" {
		name += " " + a.MiddleName
	}
	if a.LastName != "" {
		name += " " + a.LastName
	}
	return name
}

// MarshalJSON adds the derived status to the wire form.
func (a Application) MarshalJSON() ([]byte, error) {
	type alias Application
	return json.Marshal(struct {
		alias
		Status string `json:"status"`
	}{alias: alias(a), Status: a.Status()})
}

// Address is stored as JSONB.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country,omitempty"`
	Pincode string `json:"pincode"`
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return errors.New("address: unsupported scan type")
	}
}

// DocumentType enumerates the uploads an application carries.
type DocumentType string

const (
	DocumentPhoto           DocumentType = "Photo"
	DocumentAadhar          DocumentType = "AadharCard"
	DocumentPan             DocumentType = "PanCard"
	DocumentAddressProof    DocumentType = "AddressProof"
	DocumentDegree          DocumentType = "DegreeCertificate"
	DocumentExperience      DocumentType = "ExperienceCertificate"
	DocumentSelfDeclaration DocumentType = "SelfDeclaration"
)

type Document struct {
	ID           string       `json:"id" db:"id"`
	DocumentType DocumentType `json:"documentType" db:"document_type"`
	FileID       string       `json:"fileId,omitempty" db:"file_id"`
	FilePath     string       `json:"filePath,omitempty" db:"file_path"`
	FileName     string       `json:"fileName" db:"file_name"`
	SortOrder    int          `json:"-" db:"sort_order"`
}

type Qualification struct {
	ID           string `json:"id" db:"id"`
	Institute    string `json:"instituteName" db:"institute"`
	University   string `json:"universityName" db:"university"`
	Degree       string `json:"degree" db:"degree"`
	PassingMonth int    `json:"passingMonth,omitempty" db:"passing_month"`
	PassingYear  int    `json:"passingYear" db:"passing_year"`
	FileID       string `json:"fileId,omitempty" db:"file_id"`
	FileName     string `json:"fileName,omitempty" db:"file_name"`
	SortOrder    int    `json:"-" db:"sort_order"`
}

type Experience struct {
	ID        string     `json:"id" db:"id"`
	Company   string     `json:"companyName" db:"company"`
	Position  string     `json:"position" db:"position"`
	FromDate  time.Time  `json:"fromDate" db:"from_date"`
	ToDate    *time.Time `json:"toDate,omitempty" db:"to_date"`
	FileID    string     `json:"fileId,omitempty" db:"file_id"`
	FileName  string     `json:"fileName,omitempty" db:"file_name"`
	SortOrder int        `json:"-" db:"sort_order"`
}

// StageHistory is one applied transition.
type StageHistory struct {
	ID            string          `json:"id" db:"id"`
	ApplicationID string          `json:"applicationId" db:"application_id"`
	FromStage     workflow.Stage  `json:"fromStage" db:"from_stage"`
	ToStage       workflow.Stage  `json:"toStage" db:"to_stage"`
	Action        workflow.Action `json:"action" db:"action"`
	ActorID       string          `json:"actorId" db:"actor_id"`
	ActorRole     workflow.Role   `json:"actorRole" db:"actor_role"`
	Comments      string          `json:"comments,omitempty" db:"comments"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// ApplicationSummary is the dashboard and list projection.
type ApplicationSummary struct {
	ID                string                `json:"id" db:"id"`
	ApplicationNumber string                `json:"applicationNumber" db:"application_number"`
	FirstName         string                `json:"firstName" db:"first_name"`
	LastName          string                `json:"lastName" db:"last_name"`
	Email             string                `json:"email" db:"email"`
	PositionType      workflow.PositionType `json:"positionType" db:"position_type"`
	CurrentStage      workflow.Stage        `json:"currentStage" db:"current_stage"`
	Status            string                `json:"status" db:"-"`
	CreatedAt         time.Time             `json:"createdAt" db:"created_at"`
}

// Page is a paginated list result.
type Page[T any] struct {
	Items      []T `json:"items"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
