package importer

import "strings"

// Column roles the prompt builder understands.
var roleOrder = []string{
	"company", "website", "email", "contact", "title", "phone",
	"address", "industry", "rating", "reviews", "notes",
}

// roleGuesses lists header names per role, most specific first. Exact
// matches win over substring matches across the whole list.
var roleGuesses = map[string][]string{
	"company":  {"company", "company_name", "business name", "business", "organization", "name", "firm", "account"},
	"website":  {"url", "website", "web", "domain", "site", "webpage"},
	"email":    {"email", "email_address", "e-mail", "mail"},
	"contact":  {"contact", "contact_name", "person", "full name", "first name"},
	"title":    {"title", "job_title", "role", "position", "designation"},
	"phone":    {"phone", "telephone", "tel", "mobile", "cell"},
	"address":  {"address", "location", "city", "street", "region"},
	"industry": {"industry", "sector", "vertical", "category", "type", "segment"},
	"rating":   {"rating", "score", "stars"},
	"reviews":  {"reviews", "review count"},
	"notes":    {"notes", "additional_info", "description", "context", "comments", "bio"},
}

// AutoGuess maps each column role to the best-matching header, or the empty
// string when nothing fits. A header matching exactly beats any substring
// match for that role.
func AutoGuess(headers []string) map[string]string {
	mapping := make(map[string]string, len(roleOrder))
	for _, role := range roleOrder {
		mapping[role] = guessHeader(roleGuesses[role], headers)
	}
	return mapping
}

func guessHeader(guesses, headers []string) string {
	for _, g := range guesses {
		for _, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), g) {
				return h
			}
		}
	}
	for _, g := range guesses {
		for _, h := range headers {
			if strings.Contains(strings.ToLower(strings.TrimSpace(h)), g) {
				return h
			}
		}
	}
	return ""
}
