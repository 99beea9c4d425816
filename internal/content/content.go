package content

import (
	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

var policy = bluemonday.UGCPolicy()

const maxAttachmentSize = 25 << 20 // 25 MiB

// Sanitize removes unsafe HTML from the input string using a strict policy.
// Message content passes through here before persistence.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateAttachment checks an attachment descriptor before it is accepted
// on a send. File bytes live in the upload store; only metadata is validated
// here.
func ValidateAttachment(a models.Attachment) error {
	if a.Name == "" {
		return apperr.Validation("attachment name is required")
	}
	if a.FileID == "" {
		return apperr.Validation("attachment fileId is required")
	}
	if a.Size < 0 || a.Size > maxAttachmentSize {
		return apperr.Validation("attachment %q exceeds the size limit", a.Name)
	}
	if a.MimeType == "" || !filetype.IsMIMESupported(a.MimeType) {
		return apperr.Validation("attachment %q has unsupported mime type %q", a.Name, a.MimeType)
	}
	return nil
}
