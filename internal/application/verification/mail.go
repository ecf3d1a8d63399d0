package verification

import (
	"fmt"

	"github.com/techservice/notifier/internal/domain"
)

var codeSubjects = map[domain.CodeType]string{
	domain.CodeTypeCustomerRegistration: "Confirm your registration",
	domain.CodeTypeUserCreation:         "Confirm your account",
	domain.CodeTypePasswordReset:        "Password reset code",
	domain.CodeTypeEmailChange:          "Confirm your new email",
	domain.CodeTypeAccountActivation:    "Activate your account",
}

// CodeEmail builds the plain-text message that carries v.Code to its owner.
func CodeEmail(v *domain.VerificationCode) domain.NotificationRequest {
	subject, ok := codeSubjects[v.Type]
	if !ok {
		subject = "Your verification code"
	}
	return domain.NotificationRequest{
		To:      v.Email,
		Subject: subject,
		Body: fmt.Sprintf("Your verification code: %s\nIt expires at %s UTC.",
			v.Code, v.ExpiresAt.UTC().Format("2006-01-02 15:04")),
	}
}
