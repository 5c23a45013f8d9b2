package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuestion is returned by ChatRequest.Validate for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Question string `json:"question"`
}

// Validate trims the question and rejects blank input.
func (r *ChatRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return ErrEmptyQuestion
	}
	return nil
}
