package domain

import "context"

// NotificationPreference is the per-candidate channel opt-in view.
type NotificationPreference struct {
	NotifyEmail bool `json:"notify_email"`
	NotifySMS   bool `json:"notify_sms"`
}

type Candidate struct {
	CandID     int64
	FirstName  string
	LastName   string
	Email      string
	Mobile     string
	WorkPhone  string
	HomePhone  string
	Preference NotificationPreference
}

type Requirement struct {
	RequirementID   string
	Title           string
	Description     string
	ClientName      string
	Location        string
	Zipcode         string
	IsRemote        bool
	Duration        string
	SimilarityScore float64
}

// Application joins the candidate, the matched requirement and the tracking
// row's per-channel sent flags.
type Application struct {
	ApplicationID int64
	Status        string
	Candidate     Candidate
	Requirement   Requirement
	EmailSent     bool
	SMSSent       bool
}

// CandidateStore is the external lookup collaborator backed by the matching
// database.
type CandidateStore interface {
	Ping(ctx context.Context) error
	// GetApplicationDetails returns nil (with errval.ErrNotFound) when the
	// application does not exist or both channels were already sent.
	GetApplicationDetails(ctx context.Context, candID int64, requirementID string) (*Application, error)
	MarkEmailSent(ctx context.Context, applicationID int64) error
	MarkSMSSent(ctx context.Context, applicationID int64) error
}
