package orchestrator

import (
	"fmt"
	"strings"

	"ai-interview-be/pkg/knowledge"
	"ai-interview-be/pkg/store"
)

// turnContext is everything assembled for one candidate turn before the
// decision call.
type turnContext struct {
	state      *store.SessionState
	utterance  string
	isQuestion bool
	passages   []knowledge.Passage
}

// buildDecisionPrompt produces the user prompt of the decision model.
// The contract fields in the instructions must match the Decision struct
// tags exactly.
func buildDecisionPrompt(tc *turnContext) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are the turn controller of a structured job interview.\n")
	prompt.WriteString("You do NOT talk to the candidate. You only classify the turn and pick the next action.\n")
	prompt.WriteString("</system>\n\n")

	if q := tc.state.CurrentQuestion(); q != nil {
		prompt.WriteString("<current_question>\n")
		prompt.WriteString(fmt.Sprintf("TEXT: %s\n", q.Text))
		if q.Rubric != "" {
			prompt.WriteString(fmt.Sprintf("RUBRIC: %s\n", q.Rubric))
		}
		prompt.WriteString(fmt.Sprintf("FOLLOWUPS_USED: %d of %d\n", tc.state.FollowupsUsedCurrent, q.MaxFollowups))
		prompt.WriteString("</current_question>\n\n")
	}

	if len(tc.state.RecentTranscript) > 0 {
		prompt.WriteString("<recent_transcript>\n")
		for _, msg := range tc.state.RecentTranscript {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		prompt.WriteString("</recent_transcript>\n\n")
	}

	if tc.state.CandidateFilesSummary != "" {
		prompt.WriteString("<candidate_documents>\n")
		prompt.WriteString(tc.state.CandidateFilesSummary)
		prompt.WriteString("\n</candidate_documents>\n\n")
	}

	if len(tc.passages) > 0 {
		prompt.WriteString("<knowledge_context>\n")
		prompt.WriteString("Reference passages relevant to the candidate's words. Cite them by their [n] marker.\n")
		for i, p := range tc.passages {
			prompt.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, p.Citation, p.Content))
		}
		prompt.WriteString("</knowledge_context>\n\n")
	}

	prompt.WriteString("<candidate_utterance>\n")
	prompt.WriteString(tc.utterance)
	prompt.WriteString("\n</candidate_utterance>\n\n")

	prompt.WriteString("<instructions>\n")
	prompt.WriteString("Respond with ONE JSON object and nothing else:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"turn_type\": \"answer\" | \"question\" | \"meta\",\n")
	prompt.WriteString("  \"is_sufficient\": bool,  // does the answer cover the rubric\n")
	prompt.WriteString("  \"missing_points\": [string],  // rubric points still uncovered\n")
	prompt.WriteString("  \"next_action\": \"ask_followup\" | \"advance_question\" | \"answer_candidate_question\" | \"handle_meta\" | \"end_interview\",\n")
	prompt.WriteString("  \"followup_question\": string,  // required when next_action is ask_followup\n")
	prompt.WriteString("  \"candidate_answer_summary\": string,\n")
	prompt.WriteString("  \"detected_candidate_question\": string,\n")
	prompt.WriteString("  \"kb_answer\": string,  // grounded ONLY in knowledge_context, empty if nothing relevant\n")
	prompt.WriteString("  \"kb_citations\": [string],\n")
	prompt.WriteString("  \"file_reference\": string\n")
	prompt.WriteString("}\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Do not exceed the follow-up budget shown in current_question.\n")
	prompt.WriteString("- ask_followup only for insufficient answers worth probing.\n")
	prompt.WriteString("- answer_candidate_question only when the candidate asked something.\n")
	prompt.WriteString("- If kb_answer is needed but knowledge_context has nothing relevant, leave kb_answer empty.\n")
	prompt.WriteString("</instructions>\n")

	return prompt.String()
}

// buildFollowupPrompt asks the response model to phrase the follow-up in
// the interviewer's voice.
func buildFollowupPrompt(tc *turnContext, followup string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a friendly professional interviewer. Ask the follow-up question below in a natural, conversational way.\n")
	prompt.WriteString("Keep it short, one or two sentences. Do not add new questions.\n")
	prompt.WriteString("</task>\n\n")
	prompt.WriteString(fmt.Sprintf("Follow-up to ask: %s\n", followup))
	if tc.utterance != "" {
		prompt.WriteString(fmt.Sprintf("What the candidate just said: %s\n", tc.utterance))
	}

	return prompt.String()
}

// buildKbAnswerPrompt phrases a knowledge-grounded answer to a candidate
// question.
func buildKbAnswerPrompt(question, kbAnswer string, citations []string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a friendly professional interviewer. The candidate asked a question; deliver the grounded answer below conversationally, then invite them to continue.\n")
	prompt.WriteString("Do not invent facts beyond the grounded answer.\n")
	prompt.WriteString("</task>\n\n")
	prompt.WriteString(fmt.Sprintf("Candidate question: %s\n", question))
	prompt.WriteString(fmt.Sprintf("Grounded answer: %s\n", kbAnswer))
	if len(citations) > 0 {
		prompt.WriteString(fmt.Sprintf("Sources: %s\n", strings.Join(citations, ", ")))
	}

	return prompt.String()
}

// buildMetaPrompt phrases an acknowledgment of an off-topic or
// procedural remark.
func buildMetaPrompt(utterance string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a friendly professional interviewer. The candidate made a remark that is not an answer. Acknowledge it briefly and steer back to the current question.\n")
	prompt.WriteString("One sentence, warm, no new questions.\n")
	prompt.WriteString("</task>\n\n")
	prompt.WriteString(fmt.Sprintf("Candidate remark: %s\n", utterance))

	return prompt.String()
}

// buildInquiryPrompt drives free-form inquiry sessions: every turn is a
// direct grounded answer, no interview state machine.
func buildInquiryPrompt(state *store.SessionState, utterance string, passages []knowledge.Passage) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a helpful assistant answering questions about the company and role.\n")
	prompt.WriteString("Ground every claim in the reference passages or the candidate's documents. If neither covers it, say you don't have that information and that you will note it for the team.\n")
	prompt.WriteString("</task>\n\n")

	if len(passages) > 0 {
		prompt.WriteString("<reference_passages>\n")
		for i, p := range passages {
			prompt.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, p.Citation, p.Content))
		}
		prompt.WriteString("</reference_passages>\n\n")
	}

	if state.CandidateFilesSummary != "" {
		prompt.WriteString("<candidate_documents>\n")
		prompt.WriteString(state.CandidateFilesSummary)
		prompt.WriteString("\n</candidate_documents>\n\n")
	}

	if len(state.RecentTranscript) > 0 {
		prompt.WriteString("<conversation>\n")
		for _, msg := range state.RecentTranscript {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		prompt.WriteString("</conversation>\n\n")
	}

	prompt.WriteString(fmt.Sprintf("Question: %s\n", utterance))

	return prompt.String()
}
