package ehr

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// Submitter is the gateway surface the client needs
type Submitter interface {
	Submit(ctx context.Context, callerID, function string, args ...string) (*types.TxResult, error)
	Evaluate(ctx context.Context, callerID, function string, args ...string) ([]byte, error)
}

// Client is the typed interface to the EHR chaincode. State-changing calls go
// through Submit and wait for commit; pure reads go through Evaluate.
type Client struct {
	gw  Submitter
	log *logger.Logger
}

// NewClient creates a chaincode client over the given gateway
func NewClient(gw Submitter, log *logger.Logger) *Client {
	return &Client{gw: gw, log: log}
}

func unmarshalPayload(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return types.NewInternalError("failed to parse chaincode payload", err)
	}
	return nil
}

// InitLedger bootstraps the ledger. Admin only.
func (c *Client) InitLedger(ctx context.Context, callerID string) error {
	_, err := c.gw.Submit(ctx, callerID, "InitLedger")
	return err
}

// RegisterPatient creates a patient registration
func (c *Client) RegisterPatient(ctx context.Context, callerID, patientID, displayName, profileHash string) (*types.Patient, error) {
	result, err := c.gw.Submit(ctx, callerID, "RegisterPatient", patientID, displayName, profileHash)
	if err != nil {
		return nil, err
	}
	var patient types.Patient
	if err := unmarshalPayload(result.Payload, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// UpdatePatientProfile updates a patient's display name and profile hash
func (c *Client) UpdatePatientProfile(ctx context.Context, callerID, patientID, displayName, profileHash string) (*types.Patient, error) {
	result, err := c.gw.Submit(ctx, callerID, "UpdatePatientProfile", patientID, displayName, profileHash)
	if err != nil {
		return nil, err
	}
	var patient types.Patient
	if err := unmarshalPayload(result.Payload, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// DeactivatePatient marks a patient inactive. Admin only.
func (c *Client) DeactivatePatient(ctx context.Context, callerID, patientID, reason string) error {
	_, err := c.gw.Submit(ctx, callerID, "DeactivatePatient", patientID, reason)
	return err
}

// GetPatient reads a patient registration
func (c *Client) GetPatient(ctx context.Context, callerID, patientID string) (*types.Patient, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "GetPatient", patientID)
	if err != nil {
		return nil, err
	}
	var patient types.Patient
	if err := unmarshalPayload(payload, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// CreateRecord appends a medical record for a patient
func (c *Client) CreateRecord(ctx context.Context, callerID string, req *CreateRecordRequest) (*types.MedicalRecord, error) {
	metadataJSON := "{}"
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, types.NewInternalError("failed to marshal record metadata", err)
		}
		metadataJSON = string(raw)
	}

	result, err := c.gw.Submit(ctx, callerID, "CreateRecord",
		req.RecordID, req.PatientID, req.RecordType, req.ContentPointer,
		metadataJSON, strconv.FormatBool(req.Confidential), strings.Join(req.Tags, ","))
	if err != nil {
		return nil, err
	}
	var record types.MedicalRecord
	if err := unmarshalPayload(result.Payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateRecordRequest carries the fields of a new medical record
type CreateRecordRequest struct {
	RecordID       string
	PatientID      string
	RecordType     string
	ContentPointer string
	Metadata       map[string]string
	Confidential   bool
	Tags           []string
}

// GetRecord reads a medical record through the consent gate. The read is
// submitted as a transaction so that denied attempts leave a committed audit
// entry; a denial surfaces as an access error here.
func (c *Client) GetRecord(ctx context.Context, callerID, recordID, reason string) (*types.MedicalRecord, error) {
	result, err := c.gw.Submit(ctx, callerID, "ReadRecord", recordID, reason)
	if err != nil {
		return nil, err
	}

	var envelope types.RecordEnvelope
	if err := unmarshalPayload(result.Payload, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Allowed {
		return nil, &types.LedgerError{
			Type:    types.ErrorTypeAuthorization,
			Code:    envelope.Code,
			Message: envelope.Reason,
		}
	}
	return envelope.Record, nil
}

// UpdateRecordMetadata merges a metadata patch into an existing record and
// optionally swaps its content pointer
func (c *Client) UpdateRecordMetadata(ctx context.Context, callerID, recordID string, patch map[string]string, contentPointer string) (*types.MedicalRecord, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, types.NewInternalError("failed to marshal metadata patch", err)
	}

	result, err := c.gw.Submit(ctx, callerID, "UpdateRecordMetadata", recordID, string(raw), contentPointer)
	if err != nil {
		return nil, err
	}
	var record types.MedicalRecord
	if err := unmarshalPayload(result.Payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteRecord tombstones a record. The record's content is never erased.
func (c *Client) DeleteRecord(ctx context.Context, callerID, recordID, reason string) error {
	_, err := c.gw.Submit(ctx, callerID, "DeleteRecord", recordID, reason)
	return err
}

// ListRecordsByPatient returns the records of a patient visible to the caller
func (c *Client) ListRecordsByPatient(ctx context.Context, callerID, patientID string) ([]*types.MedicalRecord, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "ListRecordsByPatient", patientID)
	if err != nil {
		return nil, err
	}
	var records []*types.MedicalRecord
	if err := unmarshalPayload(payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CheckAccess asks whether accessorID may read the given record type of a
// patient, without reading anything
func (c *Client) CheckAccess(ctx context.Context, callerID, patientID, accessorID, recordType string) (*types.AccessDecision, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "CheckAccess", patientID, accessorID, recordType)
	if err != nil {
		return nil, err
	}
	var decision types.AccessDecision
	if err := unmarshalPayload(payload, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// CreateConsent grants a grantee scoped access to a patient's records
func (c *Client) CreateConsent(ctx context.Context, callerID string, req *CreateConsentRequest) (*types.Consent, error) {
	result, err := c.gw.Submit(ctx, callerID, "CreateConsent",
		req.ConsentID, req.PatientID, req.GranteeID, strings.Join(req.Scope, ","),
		req.Purpose, req.ValidFrom.UTC().Format(time.RFC3339), req.ValidUntil.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	var consent types.Consent
	if err := unmarshalPayload(result.Payload, &consent); err != nil {
		return nil, err
	}
	return &consent, nil
}

// CreateConsentRequest carries the fields of a new consent grant
type CreateConsentRequest struct {
	ConsentID  string
	PatientID  string
	GranteeID  string
	Scope      []string
	Purpose    string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// RevokeConsent withdraws a consent grant
func (c *Client) RevokeConsent(ctx context.Context, callerID, consentID, reason string) (*types.Consent, error) {
	result, err := c.gw.Submit(ctx, callerID, "RevokeConsent", consentID, reason)
	if err != nil {
		return nil, err
	}
	var consent types.Consent
	if err := unmarshalPayload(result.Payload, &consent); err != nil {
		return nil, err
	}
	return &consent, nil
}

// GetConsent reads a consent grant
func (c *Client) GetConsent(ctx context.Context, callerID, consentID string) (*types.Consent, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "GetConsent", consentID)
	if err != nil {
		return nil, err
	}
	var consent types.Consent
	if err := unmarshalPayload(payload, &consent); err != nil {
		return nil, err
	}
	return &consent, nil
}

// ListConsentsByPatient returns all consents granted by a patient
func (c *Client) ListConsentsByPatient(ctx context.Context, callerID, patientID string) ([]*types.Consent, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "ListConsentsByPatient", patientID)
	if err != nil {
		return nil, err
	}
	var consents []*types.Consent
	if err := unmarshalPayload(payload, &consents); err != nil {
		return nil, err
	}
	return consents, nil
}

// ScheduleAppointment books an appointment between a patient and a doctor
func (c *Client) ScheduleAppointment(ctx context.Context, callerID, appointmentID, patientID, doctorID string, scheduledFor time.Time, notes string) (*types.Appointment, error) {
	result, err := c.gw.Submit(ctx, callerID, "ScheduleAppointment",
		appointmentID, patientID, doctorID, scheduledFor.UTC().Format(time.RFC3339), notes)
	if err != nil {
		return nil, err
	}
	var appt types.Appointment
	if err := unmarshalPayload(result.Payload, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// ConfirmAppointment confirms a scheduled appointment
func (c *Client) ConfirmAppointment(ctx context.Context, callerID, appointmentID string) (*types.Appointment, error) {
	return c.submitAppointment(ctx, callerID, "ConfirmAppointment", appointmentID)
}

// CompleteAppointment completes a confirmed appointment, optionally linking
// the record produced during the encounter
func (c *Client) CompleteAppointment(ctx context.Context, callerID, appointmentID, recordID string) (*types.Appointment, error) {
	return c.submitAppointment(ctx, callerID, "CompleteAppointment", appointmentID, recordID)
}

// CancelAppointment cancels a pending appointment
func (c *Client) CancelAppointment(ctx context.Context, callerID, appointmentID, reason string) (*types.Appointment, error) {
	return c.submitAppointment(ctx, callerID, "CancelAppointment", appointmentID, reason)
}

// RescheduleAppointment moves a pending appointment to a new time
func (c *Client) RescheduleAppointment(ctx context.Context, callerID, appointmentID string, scheduledFor time.Time) (*types.Appointment, error) {
	return c.submitAppointment(ctx, callerID, "RescheduleAppointment", appointmentID, scheduledFor.UTC().Format(time.RFC3339))
}

// GetAppointment reads an appointment
func (c *Client) GetAppointment(ctx context.Context, callerID, appointmentID string) (*types.Appointment, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "GetAppointment", appointmentID)
	if err != nil {
		return nil, err
	}
	var appt types.Appointment
	if err := unmarshalPayload(payload, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) submitAppointment(ctx context.Context, callerID, function string, args ...string) (*types.Appointment, error) {
	result, err := c.gw.Submit(ctx, callerID, function, args...)
	if err != nil {
		return nil, err
	}
	var appt types.Appointment
	if err := unmarshalPayload(result.Payload, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// CreatePrescription issues a prescription. The caller must be a doctor.
func (c *Client) CreatePrescription(ctx context.Context, callerID, prescriptionID, patientID, medication, dosage string) (*types.Prescription, error) {
	return c.submitPrescription(ctx, callerID, "CreatePrescription", prescriptionID, patientID, medication, dosage)
}

// DispensePrescription marks a prescription dispensed
func (c *Client) DispensePrescription(ctx context.Context, callerID, prescriptionID string) (*types.Prescription, error) {
	return c.submitPrescription(ctx, callerID, "DispensePrescription", prescriptionID)
}

// RevokePrescription withdraws an active prescription
func (c *Client) RevokePrescription(ctx context.Context, callerID, prescriptionID, reason string) (*types.Prescription, error) {
	return c.submitPrescription(ctx, callerID, "RevokePrescription", prescriptionID, reason)
}

// GetPrescription reads a prescription
func (c *Client) GetPrescription(ctx context.Context, callerID, prescriptionID string) (*types.Prescription, error) {
	payload, err := c.gw.Evaluate(ctx, callerID, "GetPrescription", prescriptionID)
	if err != nil {
		return nil, err
	}
	var rx types.Prescription
	if err := unmarshalPayload(payload, &rx); err != nil {
		return nil, err
	}
	return &rx, nil
}

func (c *Client) submitPrescription(ctx context.Context, callerID, function string, args ...string) (*types.Prescription, error) {
	result, err := c.gw.Submit(ctx, callerID, function, args...)
	if err != nil {
		return nil, err
	}
	var rx types.Prescription
	if err := unmarshalPayload(result.Payload, &rx); err != nil {
		return nil, err
	}
	return &rx, nil
}
