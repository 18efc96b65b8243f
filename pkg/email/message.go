package email

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/sf7293/job-notifier/internal/domain"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Subject builds the notification subject line for one matched application.
func Subject(app *domain.Application) string {
	return fmt.Sprintf("New Job Match: %s at %s (%d%% fit)",
		app.Requirement.Title,
		app.Requirement.ClientName,
		MatchScore(app),
	)
}

// Body builds the plain-text notification body.
func Body(app *domain.Application) string {
	firstName := app.Candidate.FirstName
	if firstName == "" {
		firstName = "Candidate"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName)
	fmt.Fprintf(&b, "We found a new job match for you and applied on your behalf.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", app.Requirement.Title)
	fmt.Fprintf(&b, "Client: %s\n", app.Requirement.ClientName)
	fmt.Fprintf(&b, "Location: %s\n", app.Requirement.Location)
	fmt.Fprintf(&b, "Job Type: %s\n", JobType(app))
	fmt.Fprintf(&b, "Match Score: %d%%\n", MatchScore(app))
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(app.Status))

	if desc := CleanDescription(app.Requirement.Description); desc != "" {
		fmt.Fprintf(&b, "\n%s\n", desc)
	}

	b.WriteString("\nA recruiter will contact you soon.\n")
	return b.String()
}

func JobType(app *domain.Application) string {
	if app.Requirement.Duration != "" {
		return fmt.Sprintf("Contract (%s)", app.Requirement.Duration)
	}

	return "Contract"
}

func MatchScore(app *domain.Application) int {
	return int(app.Requirement.SimilarityScore * 100)
}

// CleanDescription strips markup from the stored requirement description and
// truncates it to a short teaser.
func CleanDescription(description string) string {
	clean := htmlTagPattern.ReplaceAllString(description, "")
	clean = html.UnescapeString(clean)
	clean = strings.TrimSpace(clean)
	if runes := []rune(clean); len(runes) > 250 {
		clean = strings.TrimSpace(string(runes[:250])) + "..."
	}

	return clean
}
