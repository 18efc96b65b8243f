package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
)

const defaultBaseURL = "https://api.twilio.com"

const maxMessageLength = 160

// Sender delivers job-match notifications through the Twilio Messages API.
type Sender struct {
	accountSID string
	authToken  string
	fromPhone  string
	baseURL    string
	client     *http.Client
}

func NewSender(accountSID, authToken, fromPhone string) *Sender {
	return &Sender{
		accountSID: accountSID,
		authToken:  authToken,
		fromPhone:  fromPhone,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Sender) Channel() domain.Channel {
	return domain.ChannelSMS
}

func (s *Sender) Send(ctx context.Context, app *domain.Application) error {
	toPhone := FormatPhoneNumber(PickMobile(app.Candidate))
	if !ValidatePhoneNumber(toPhone) {
		return fmt.Errorf("candidate %d has no valid phone number: %w", app.Candidate.CandID, errval.ErrUnusableRecipient)
	}

	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", s.fromPhone)
	form.Set("Body", BuildMessage(app))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(detail))
	}

	return nil
}

// BuildMessage composes the SMS text, clipped to a single segment.
func BuildMessage(app *domain.Application) string {
	firstName := app.Candidate.FirstName
	if firstName == "" {
		firstName = "Candidate"
	}

	message := fmt.Sprintf("Hi %s! Job Matched: %s (%d%% fit). Auto-applied for you. Recruiter will contact soon!",
		firstName,
		app.Requirement.Title,
		int(app.Requirement.SimilarityScore*100),
	)
	// Clip on rune boundaries, a multibyte character split mid-sequence would
	// leave invalid UTF-8 in the outbound message
	if runes := []rune(message); len(runes) > maxMessageLength {
		message = string(runes[:maxMessageLength])
	}

	return message
}
