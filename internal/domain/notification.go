package domain

import "time"

// DefaultMaxRetries applies to codes and notification requests created without an explicit ceiling.
const DefaultMaxRetries = 3

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// NotificationRequest is one message waiting in the delivery queue.
// Either Subject/Body or TemplateName must be set.
type NotificationRequest struct {
	ID            string            `json:"id"`
	To            string            `json:"to" validate:"required,email"`
	Subject       string            `json:"subject" validate:"required_without=TemplateName"`
	Body          string            `json:"body" validate:"required_without=TemplateName"`
	IsHTML        bool              `json:"is_html"`
	TemplateName  string            `json:"template_name,omitempty"`
	TemplateData  map[string]string `json:"template_data,omitempty"`
	Attachments   []Attachment      `json:"attachments,omitempty"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	CreatedAt     time.Time         `json:"created_at"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
}

// Message is a fully rendered message handed to a transport.
type Message struct {
	To          string
	Subject     string
	Body        string
	IsHTML      bool
	Attachments []Attachment
}

// DeliveryResult is the terminal outcome of one NotificationRequest.
type DeliveryResult struct {
	TrackingID   string    `json:"tracking_id" dynamodbav:"tracking_id"`
	Recipient    string    `json:"recipient" dynamodbav:"recipient"`
	Subject      string    `json:"subject" dynamodbav:"subject"`
	TemplateName string    `json:"template_name,omitempty" dynamodbav:"template_name,omitempty"`
	SentAt       time.Time `json:"sent_at" dynamodbav:"sent_at"`
	Success      bool      `json:"success" dynamodbav:"success"`
	ErrorMessage *string   `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`
	Attempts     int       `json:"attempts" dynamodbav:"attempts"`
}

// Statistics is a point-in-time view of delivery counters.
type Statistics struct {
	TotalSent   int64            `json:"total_sent"`
	Succeeded   int64            `json:"succeeded"`
	Failed      int64            `json:"failed"`
	Abandoned   int64            `json:"abandoned"`
	Blacklisted int64            `json:"blacklisted"`
	Pending     int              `json:"pending"`
	ByTemplate  map[string]int64 `json:"by_template"`
	Daily       []DailyCount     `json:"daily"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
}

// DailyCount aggregates tracked outcomes for one UTC calendar day.
type DailyCount struct {
	Date      string `json:"date"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}
