package dialogue

import (
	"fmt"
	"strings"

	"github.com/alanhsu0429/hottea/internal/processor"
)

const (
	qaContentLimit         = 1500
	qaHistoryLimit         = 800
	suggestionContentLimit = 1500
	suggestionDialogLimit  = 1000
)

func clip(s string, max int) string {
	if processor.Length(s) <= max {
		return s
	}
	return processor.Truncate(s, max) + "..."
}

func languageLine(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf("\n**Language:** write every message in %s.\n", language)
}

// DialoguePrompt asks for a group chat about the article, one JSON object
// per line and a final summary line.
func DialoguePrompt(title, content, userName, language string) string {
	return fmt.Sprintf(`Transform this news article into a natural friend group chat conversation.

**Character Identification:**
1. Identify ALL key figures mentioned in the news (not just 2-3)
2. Include everyone who plays a significant role in the story
3. Use their full names as they appear in the article
4. If no specific individuals: use media/organization representatives

**Conversation Style:**
1. Friend group: everyone chats naturally and casually
2. User role (%[3]q): loves gossip, asks curious follow-up questions
3. News figures: share insider stories and personal experiences
4. News figures also chat with each other
5. Each response carries 2-3 specific facts from the article

**Key Rules:**
1. The user is called %[3]q, others use full names from the article
2. Conversation length: 15-25 exchanges
3. Mention all figures, dates and locations from the article
%[4]s
**Output Format:**
- Each line = ONE complete JSON object
- Message format: {"speaker":"[full name]","content":"[message text]"}
- Final line format: {"summary":"[brief summary]"}
- NO markdown blocks, NO explanatory text

---

**Article Title:** %[1]s

**Article Content:**
%[2]s

---

START OUTPUT (JSON lines only):`, title, content, userName, languageLine(language))
}

// QAPrompt asks for a scored answer to a follow-up question.
func QAPrompt(question, title, content, history, language string) string {
	var b strings.Builder
	b.WriteString(`You are a professional news analysis assistant. The user is reading a news article and has follow-up questions about it.

**Relevance Scoring Criteria (0-100 scale):**
- 90-100: directly discusses people, events, data or details from the news
- 80-89: impact, background, causes or future developments
- 70-79: related industries, competitors or similar events
- 60-69: broader topic discussions
- 50-59: indirectly related
- Below 50: no clear connection to the news topic

**Response Strategy:**
- 70+: complete answer (max 80 words)
- 50-69: brief answer that leads back to the news (max 50 words)
- Below 50: politely decline and offer 2-3 suggested questions

Answer with this JSON object:
{"relevanceScore": 85, "isRelevant": true, "response": "answer", "responseType": "full|brief|rejected", "suggestedQuestions": ["question"]}
`)
	b.WriteString(languageLine(language))

	if title != "" && content != "" {
		fmt.Fprintf(&b, "\n**News Title:** %s\n\n**News Content:**\n%s\n", title, clip(content, qaContentLimit))
	}
	if strings.TrimSpace(history) != "" {
		fmt.Fprintf(&b, "\n**Q&A History:**\n%s\n", clip(history, qaHistoryLimit))
	}

	fmt.Fprintf(&b, "\n**User Question:**\n%s", question)
	return b.String()
}

// SuggestionsPrompt asks for short follow-up questions about the article
// and the generated conversation.
func SuggestionsPrompt(title, content, transcript, language string) string {
	return fmt.Sprintf(`Based on the news content and generated conversation, suggest 3 insightful follow-up questions.

**Question Quality Requirements:**
1. Relevant to the news and the conversation
2. Open-ended, never yes/no
3. Cover different aspects: impact, background, future developments
4. SHORT and DIRECT (10-20 words maximum), one thing per question
%[4]s
Return this JSON object:
{"questions": ["Short question 1?", "Short question 2?", "Short question 3?"]}

News Title: %[1]s
News Content:
%[2]s

Generated Conversation:
%[3]s`, title, clip(content, suggestionContentLimit), clip(transcript, suggestionDialogLimit), languageLine(language))
}
