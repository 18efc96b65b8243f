package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
)

const defaultBaseURL = "https://api.sendgrid.com"

// Sender delivers job-match notifications through the SendGrid v3 mail API.
type Sender struct {
	apiKey    string
	fromEmail string
	baseURL   string
	client    *http.Client
}

func NewSender(apiKey, fromEmail string) *Sender {
	return &Sender{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Sender) Channel() domain.Channel {
	return domain.ChannelEmail
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailRequest struct {
	Personalizations []struct {
		To []mailAddress `json:"to"`
	} `json:"personalizations"`
	From    mailAddress `json:"from"`
	Subject string      `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func (s *Sender) Send(ctx context.Context, app *domain.Application) error {
	payload := mailRequest{
		From:    mailAddress{Email: s.fromEmail},
		Subject: Subject(app),
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []mailAddress `json:"to"`
	}{To: []mailAddress{{Email: app.Candidate.Email}}})
	payload.Content = append(payload.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/plain", Value: Body(app)})

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, string(detail))
	}

	return nil
}
