package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *ChatRequest
		want    string
		wantErr bool
	}{
		{"empty question", &ChatRequest{Question: ""}, "", true},
		{"blank question", &ChatRequest{Question: "  \n\t"}, "", true},
		{"valid question", &ChatRequest{Question: "What was Q1 revenue?"}, "What was Q1 revenue?", false},
		{"trims whitespace", &ChatRequest{Question: "  hi  "}, "hi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrEmptyQuestion) {
				t.Errorf("expected ErrEmptyQuestion, got %v", err)
			}
			if !tt.wantErr && tt.req.Question != tt.want {
				t.Errorf("Question = %q, want %q", tt.req.Question, tt.want)
			}
		})
	}
}

func TestNewChatAnswer_encodesEmptySources(t *testing.T) {
	data, err := json.Marshal(NewChatAnswer("x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"answer":"x","sources":[]}` {
		t.Errorf("got %s", data)
	}
}
