// internal/workers/application/issue-certificate/models.go
package issuecertificate

type Input struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	CertificateNumber string `json:"certificateNumber"`
	ToStage           int    `json:"toStage"`
}

type Output struct {
	CertificatePath string `json:"certificatePath"`
	IssuedAt        string `json:"issuedAt"`
}
