package domain

import "time"

// CodeType scopes a verification code to the workflow it gates.
type CodeType string

const (
	CodeTypeCustomerRegistration CodeType = "customer_registration"
	CodeTypeUserCreation         CodeType = "user_creation"
	CodeTypePasswordReset        CodeType = "password_reset"
	CodeTypeEmailChange          CodeType = "email_change"
	CodeTypeAccountActivation    CodeType = "account_activation"
)

// Valid reports whether t is one of the known code types.
func (t CodeType) Valid() bool {
	switch t {
	case CodeTypeCustomerRegistration, CodeTypeUserCreation, CodeTypePasswordReset,
		CodeTypeEmailChange, CodeTypeAccountActivation:
		return true
	}
	return false
}

// VerificationCode is a one-time numeric code bound to (email, type).
// Records are never deleted; they become terminal once used, superseded,
// expired or out of retries.
// EmailType is the DynamoDB hash key ("<email>#<type>"), CreatedAtNano the range key.
type VerificationCode struct {
	ID             string     `json:"id" dynamodbav:"code_id"`
	Email          string     `json:"email" dynamodbav:"email"`
	EmailType      string     `json:"-" dynamodbav:"email_type"`
	Code           string     `json:"-" dynamodbav:"code"`
	Type           CodeType   `json:"type" dynamodbav:"type"`
	Purpose        string     `json:"purpose" dynamodbav:"purpose"`
	AdditionalData string     `json:"additional_data,omitempty" dynamodbav:"additional_data"`
	CreatedAt      time.Time  `json:"created_at" dynamodbav:"-"`
	CreatedAtNano  int64      `json:"-" dynamodbav:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	Used           bool       `json:"used" dynamodbav:"used"`
	UsedAt         *time.Time `json:"used_at,omitempty" dynamodbav:"used_at"`
	Superseded     bool       `json:"superseded" dynamodbav:"superseded"`
	RetryCount     int        `json:"retry_count" dynamodbav:"retry_count"`
	MaxRetries     int        `json:"max_retries" dynamodbav:"max_retries"`
	Version        int64      `json:"-" dynamodbav:"version"`
}

// IsExpired reports whether now is past the expiry instant.
func (v *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// IsValid reports whether the code can still be redeemed at now.
func (v *VerificationCode) IsValid(now time.Time) bool {
	return !v.Used && !v.Superseded && !v.IsExpired(now) && v.RetryCount < v.MaxRetries
}

// RetriesRemaining is never negative.
func (v *VerificationCode) RetriesRemaining() int {
	if n := v.MaxRetries - v.RetryCount; n > 0 {
		return n
	}
	return 0
}

// EmailTypeKey builds the lookup key shared by every code for one (email, type) pair.
func EmailTypeKey(email string, t CodeType) string {
	return email + "#" + string(t)
}
