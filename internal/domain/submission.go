package domain

import (
	"time"
)

// SubmissionStatus tracks where a submission is in the payment lifecycle.
type SubmissionStatus string

const (
	StatusPendingPayment SubmissionStatus = "pending_payment"
	StatusPaid           SubmissionStatus = "paid"
)

// EmailSourceFrontendPatch marks an email written by the client after payment.
const EmailSourceFrontendPatch = "frontend_patch"

// Submission is one presenter's rehearsal, from checkout to paid upload.
// The document is keyed by SubmissionID, which the client generates.
type Submission struct {
	SubmissionID  string           `bson:"_id" json:"submissionId"`
	PresenterName string           `bson:"presenterName,omitempty" json:"presenterName,omitempty"`
	Status        SubmissionStatus `bson:"status" json:"status"`
	Paid          bool             `bson:"paid" json:"paid"`

	// TransactionID is written once, by payment confirmation. Every later
	// privileged operation must present it.
	TransactionID string `bson:"transactionId,omitempty" json:"transactionId,omitempty"`

	Email        string `bson:"email,omitempty" json:"email,omitempty"` // write-once
	EmailMissing bool   `bson:"emailMissing" json:"emailMissing"`
	EmailSource  string `bson:"emailSource,omitempty" json:"emailSource,omitempty"`

	// Assets maps a transaction id to the object paths issued for it.
	Assets map[string]AssetSet `bson:"assets,omitempty" json:"assets,omitempty"`

	RawEventType   string     `bson:"rawEventType,omitempty" json:"rawEventType,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	PaidAt         *time.Time `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	EmailPatchedAt *time.Time `bson:"emailPatchedAt,omitempty" json:"emailPatchedAt,omitempty"`
}

// AssetSet is the set of object paths prepared for one transaction.
type AssetSet struct {
	SlidesPath  string    `bson:"slidesPath" json:"slidesPath"`
	AudioPath   string    `bson:"audioPath" json:"audioPath"`
	MetricsPath string    `bson:"metricsPath" json:"metricsPath"`
	PreparedAt  time.Time `bson:"preparedAt" json:"preparedAt"`
}

// PaymentConfirmation is what the payment webhook extracted from an event.
type PaymentConfirmation struct {
	SubmissionID  string
	TransactionID string // may be empty if the event carried none
	Email         string // empty when none was discoverable
	PresenterName string // merged only when none is stored
	EventType     string
}
