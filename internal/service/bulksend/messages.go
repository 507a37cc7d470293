package bulksend

import (
	"fmt"

	"github.com/ignite/bulk-mailer/internal/domain"
)

// Text shown when a job could not run to completion.
const jobFailedText = "Finished with an error. Some emails may not have been sent."

func plural(n uint, one, many string) string {
	if n == 1 {
		return one
	}
	return fmt.Sprintf(many, n)
}

func sentMessage(sent uint) domain.StatusMessage {
	return domain.StatusMessage{
		Level: domain.MessageStatus,
		Text:  plural(sent, "Sent 1 email.", "Sent %d emails."),
	}
}

func failedWithReportMessage(failed uint, url string) domain.StatusMessage {
	return domain.StatusMessage{
		Level: domain.MessageWarning,
		Text:  plural(failed, "1 email failed. Download CSV with failed email addresses.", "%d emails failed. Download CSV with failed email addresses."),
		URL:   url,
	}
}

func failedNoReportMessage(failed uint) domain.StatusMessage {
	return domain.StatusMessage{
		Level: domain.MessageWarning,
		Text:  plural(failed, "1 email failed (see logs).", "%d emails failed (see logs)."),
	}
}

func jobFailedMessage() domain.StatusMessage {
	return domain.StatusMessage{Level: domain.MessageError, Text: jobFailedText}
}
