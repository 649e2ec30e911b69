// Package knowledge builds the prompts for the conversational intents:
// explanations, process steps, script generation, and free chat.  Prompts
// are adjusted by the acting user's roles so a sales user and an accountant
// asking the same question get answers framed for their work.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/ontime-erp/assistant/internal/assistant/llm"
)

// Role names recognized for prompt adornment.
const (
	RoleSales    = "Sales User"
	RoleAccounts = "Accounts User"
)

// systemPrompt frames every knowledge call.
const systemPrompt = `You are an assistant for a business management (ERP) application. Answer questions about ERP concepts, records, and processes. Be concise, practical, and specific to ERP usage. Answer in the same language as the question.`

// ExplainMessages builds the conversation for an "explain" intent.
func ExplainMessages(query string, roles []string) []llm.Message {
	prompt := fmt.Sprintf("Explain %q in the context of the ERP system. Provide a concise and clear explanation, and if applicable, mention relevant record types or modules. If it's a process, outline the steps.", query)
	return messages(adornPerspective(prompt, roles))
}

// StepsMessages builds the conversation for a "steps" intent.
func StepsMessages(query string, roles []string) []llm.Message {
	prompt := fmt.Sprintf("Outline the steps to %q in the ERP system. Be specific and clear.", query)
	return messages(adornPerspective(prompt, roles))
}

// ScriptMessages builds the conversation for a "generate_script" intent.
func ScriptMessages(query string) []llm.Message {
	prompt := fmt.Sprintf("Write the script the user asks for, targeting the ERP system's scripting API. Include a short comment explaining what it does. Request: %s", query)
	return messages(prompt)
}

// ChatMessages builds the conversation for the free-chat fallback.  The
// user's query is adorned with their domain so answers stay on topic.
func ChatMessages(query string, roles []string) []llm.Message {
	return messages(AdornQuery(query, roles))
}

// AdornQuery appends a domain hint to a free-chat query based on the user's
// first recognized role.  Sales wins over accounting when a user holds both,
// mirroring how the application resolves role precedence elsewhere.
func AdornQuery(query string, roles []string) string {
	switch {
	case hasRole(roles, RoleSales):
		return query + " related to sales"
	case hasRole(roles, RoleAccounts):
		return query + " related to accounting"
	default:
		return query
	}
}

// adornPerspective appends a perspective suffix to knowledge prompts.
func adornPerspective(prompt string, roles []string) string {
	switch {
	case hasRole(roles, RoleSales):
		return prompt + " (from a sales perspective)"
	case hasRole(roles, RoleAccounts):
		return prompt + " (from an accounting perspective)"
	default:
		return prompt
	}
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}

func messages(userPrompt string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
}
