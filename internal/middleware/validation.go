package middleware

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Field length limits matching database schema constraints.
const (
	MaxTitleLen    = 200 // elections.title VARCHAR(200)
	MaxQuestionLen = 500 // elections.question VARCHAR(500)
	MaxAnswerIDLen = 64  // answer ids inside elections.answers
	MaxAnswers     = 100
	MaxTokenLen    = 128 // uuid + "." + base64url secret
)

// answerIDRe matches answer ids: alphanumeric, dash, underscore.
var answerIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateElectionID parses the :id path segment as a UUID.
func ValidateElectionID(raw string) (uuid.UUID, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, "election id is required"
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "election id must be a UUID"
	}
	return id, ""
}

// ValidateAnswerID checks that an answer id is well-formed.
func ValidateAnswerID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "answer id is required"
	}
	if len(id) > MaxAnswerIDLen {
		return "", "answer id must be at most 64 characters"
	}
	if !answerIDRe.MatchString(id) {
		return "", "answer id contains invalid characters"
	}
	return id, ""
}

// ValidateTokenShape does a cheap length/charset sanity check before the
// submission path does real work. Deliberately loose: detailed token
// verdicts would leak information.
func ValidateTokenShape(token string) (string, string) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxTokenLen {
		return "", "token rejected"
	}
	return token, ""
}

// ValidateTitle trims and bounds an election title.
func ValidateTitle(title string) (string, string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "title is required"
	}
	if len(title) > MaxTitleLen {
		return "", "title must be at most 200 characters"
	}
	return title, ""
}

// ValidateQuestion trims and bounds an election question. Empty allowed.
func ValidateQuestion(q string) (string, string) {
	q = strings.TrimSpace(q)
	if len(q) > MaxQuestionLen {
		return "", "question must be at most 500 characters"
	}
	return q, ""
}
