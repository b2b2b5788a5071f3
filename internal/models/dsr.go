package models

import "time"

// DSRType - вид запроса субъекта данных (GDPR, ст. 15-20).
type DSRType string

const (
	DSRAccess        DSRType = "access"
	DSRErasure       DSRType = "erasure"
	DSRRectification DSRType = "rectification"
	DSRPortability   DSRType = "portability"
)

// Valid проверяет, что тип входит в поддерживаемый набор.
func (t DSRType) Valid() bool {
	switch t {
	case DSRAccess, DSRErasure, DSRRectification, DSRPortability:
		return true
	default:
		return false
	}
}

// DSRStatus - состояние обработки запроса.
type DSRStatus string

const (
	DSRPending    DSRStatus = "pending"
	DSRInProgress DSRStatus = "in_progress"
	DSRCompleted  DSRStatus = "completed"
	DSRRejected   DSRStatus = "rejected"
)

// DataRequest - запрос субъекта данных, который видит администратор тенанта.
type DataRequest struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Type         DSRType   `json:"type"`
	SubjectEmail string    `json:"subject_email"`
	Status       DSRStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateDataRequest - тело POST /dsr/requests.
type CreateDataRequest struct {
	Type         DSRType `json:"type"`
	SubjectEmail string  `json:"subject_email"`
}

// DataRequestList - ответ GET /dsr/requests.
type DataRequestList struct {
	Items []DataRequest `json:"items"`
}
