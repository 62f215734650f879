package types

import "time"

// Role represents the closed set of caller roles recognized by the ledger
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ValidRoles lists every role the ledger program accepts
var ValidRoles = []Role{RoleAdmin, RoleDoctor, RolePatient}

// IsValidRole reports whether r is one of the recognized roles
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// RecordStatus represents the lifecycle state of a medical record
type RecordStatus string

const (
	RecordStatusCreated    RecordStatus = "CREATED"
	RecordStatusTombstoned RecordStatus = "TOMBSTONED"
)

// ConsentStatus represents the lifecycle state of a consent.
// Transitions are monotonic: ACTIVE -> REVOKED or ACTIVE -> EXPIRED, never backward.
type ConsentStatus string

const (
	ConsentStatusActive  ConsentStatus = "ACTIVE"
	ConsentStatusRevoked ConsentStatus = "REVOKED"
	ConsentStatusExpired ConsentStatus = "EXPIRED"
)

// ScopeAll grants a consent over every record type
const ScopeAll = "all"

// AppointmentStatus represents the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "SCHEDULED"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// PrescriptionStatus represents the lifecycle state of a prescription
type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "ACTIVE"
	PrescriptionStatusDispensed PrescriptionStatus = "DISPENSED"
	PrescriptionStatusRevoked   PrescriptionStatus = "REVOKED"
)

// AuditAction identifies the kind of operation recorded in an audit entry
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionRead   AuditAction = "READ"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionRevoke AuditAction = "REVOKE"
	AuditActionShare  AuditAction = "SHARE"
)

// AuditOutcome records whether the audited operation was permitted
type AuditOutcome string

const (
	AuditOutcomeAllowed AuditOutcome = "ALLOWED"
	AuditOutcomeDenied  AuditOutcome = "DENIED"
)

// Patient represents the on-ledger view of a patient. Plaintext PII lives in
// the off-ledger profile store; the ledger keeps only an opaque identifier and
// an integrity hash of the profile fields.
type Patient struct {
	PatientID   string    `json:"patient_id"`
	DisplayName string    `json:"display_name"`
	ProfileHash string    `json:"profile_hash,omitempty"`
	Active      bool      `json:"active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MedicalRecord represents a ledger-anchored medical record. ContentPointer is
// the content hash of an off-ledger encrypted blob; the ledger never stores or
// decrypts the blob itself.
type MedicalRecord struct {
	RecordID       string            `json:"record_id"`
	PatientID      string            `json:"patient_id"`
	AuthorID       string            `json:"author_id"`
	RecordType     string            `json:"record_type"`
	ContentPointer string            `json:"content_pointer"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Confidential   bool              `json:"confidential"`
	Tags           []string          `json:"tags,omitempty"`
	Status         RecordStatus      `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Consent is a time-bounded, scoped authorization granted by a patient to a
// grantee for a set of record types.
type Consent struct {
	ConsentID    string        `json:"consent_id"`
	PatientID    string        `json:"patient_id"`
	GranteeID    string        `json:"grantee_id"`
	Scope        []string      `json:"scope"`
	Purpose      string        `json:"purpose"`
	ValidFrom    time.Time     `json:"valid_from"`
	ValidUntil   time.Time     `json:"valid_until"`
	Status       ConsentStatus `json:"status"`
	RevokedAt    *time.Time    `json:"revoked_at,omitempty"`
	RevokeReason string        `json:"revoke_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Covers reports whether the consent scope includes the given record type
func (c *Consent) Covers(recordType string) bool {
	for _, s := range c.Scope {
		if s == ScopeAll || s == recordType {
			return true
		}
	}
	return false
}

// EffectiveStatus evaluates the consent status at the given instant. Expiry is
// lazy: a consent past ValidUntil is EXPIRED even without an explicit revoke.
func (c *Consent) EffectiveStatus(at time.Time) ConsentStatus {
	if c.Status == ConsentStatusRevoked {
		return ConsentStatusRevoked
	}
	if !at.Before(c.ValidUntil) {
		return ConsentStatusExpired
	}
	return c.Status
}

// AccessAuditEntry is an append-only record of an access attempt or state
// change, including denied attempts. Entries are never updated or deleted.
type AccessAuditEntry struct {
	EntryID      string       `json:"entry_id"`
	AccessorID   string       `json:"accessor_id"`
	AccessorRole Role         `json:"accessor_role"`
	PatientID    string       `json:"patient_id,omitempty"`
	SubjectID    string       `json:"subject_id"`
	SubjectType  string       `json:"subject_type"`
	Action       AuditAction  `json:"action"`
	Outcome      AuditOutcome `json:"outcome"`
	Reason       string       `json:"reason,omitempty"`
	TxID         string       `json:"tx_id"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Appointment represents a scheduled encounter between a patient and a doctor
type Appointment struct {
	AppointmentID string            `json:"appointment_id"`
	PatientID     string            `json:"patient_id"`
	DoctorID      string            `json:"doctor_id"`
	Status        AppointmentStatus `json:"status"`
	ScheduledFor  time.Time         `json:"scheduled_for"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Prescription represents a prescription issued by a doctor for a patient
type Prescription struct {
	PrescriptionID string             `json:"prescription_id"`
	PatientID      string             `json:"patient_id"`
	DoctorID       string             `json:"doctor_id"`
	Medication     string             `json:"medication"`
	Dosage         string             `json:"dosage"`
	Status         PrescriptionStatus `json:"status"`
	DispensedAt    *time.Time         `json:"dispensed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// AccessDecision is the result of a consent check
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RecordEnvelope wraps the result of a consent-gated record read. Denied reads
// return Allowed=false inside a successful transaction so the denial audit
// entry still commits to the ledger.
type RecordEnvelope struct {
	Allowed bool           `json:"allowed"`
	Code    string         `json:"code,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Record  *MedicalRecord `json:"record,omitempty"`
}

// TxResult reports the outcome of a committed ledger transaction
type TxResult struct {
	TransactionID string    `json:"transaction_id"`
	Payload       []byte    `json:"payload,omitempty"`
	CommittedAt   time.Time `json:"committed_at"`
	BlockSeq      uint64    `json:"block_seq"`
}
