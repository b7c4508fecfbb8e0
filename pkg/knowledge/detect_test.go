package knowledge

import (
	"testing"
)

func TestDefaultQuestionDetector(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      bool
	}{
		{
			name:      "trailing question mark",
			utterance: "What is the on-call rotation like?",
			want:      true,
		},
		{
			name:      "interrogative lead without punctuation",
			utterance: "how many people are on the team",
			want:      true,
		},
		{
			name:      "plain answer",
			utterance: "I migrated the service to Kubernetes and cut deploy time in half.",
			want:      false,
		},
		{
			name:      "answer opening with what",
			utterance: "what I did was split the monolith into three services, set up CI, wrote the runbooks, and then onboarded the rest of the team over the next two quarters",
			want:      false,
		},
		{
			name:      "empty",
			utterance: "   ",
			want:      false,
		},
		{
			name:      "polite question form",
			utterance: "can you tell me about the tech stack",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultQuestionDetector(tt.utterance); got != tt.want {
				t.Errorf("DefaultQuestionDetector(%q) = %v, want %v", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestDefaultQueryExtractor(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      string
	}{
		{
			name:      "strips question mark",
			utterance: "What is the on-call rotation like?",
			want:      "What is the on-call rotation like",
		},
		{
			name:      "strips filler prefix",
			utterance: "quick question, what is the team size?",
			want:      "what is the team size",
		},
		{
			name:      "plain query untouched",
			utterance: "remote work policy",
			want:      "remote work policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultQueryExtractor(tt.utterance); got != tt.want {
				t.Errorf("DefaultQueryExtractor(%q) = %q, want %q", tt.utterance, got, tt.want)
			}
		})
	}
}
