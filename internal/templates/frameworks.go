package templates

import "strings"

// Framework is a named persuasion structure for derived email drafts.
type Framework struct {
	Name     string `json:"name"`
	Guidance string `json:"guidance"`
}

// DefaultFrameworkID is used when a job enables email drafts without naming
// a framework.
const DefaultFrameworkID = "pas"

// Frameworks maps framework id to its deterministic guidance text.
var Frameworks = map[string]Framework{
	"pas": {
		Name: "Problem-Agitate-Solve",
		Guidance: `Structure the email as Problem-Agitate-Solve:
1. Open with the prospect's specific problem (from the research, never generic)
2. Agitate: one sentence on what the problem costs them if ignored
3. Solve: position the sender's offer as the fix, with one concrete proof point
Keep it under 120 words. One clear call to action.`,
	},
	"aida": {
		Name: "Attention-Interest-Desire-Action",
		Guidance: `Structure the email as AIDA:
1. Attention: open with a specific, recent fact about the prospect
2. Interest: connect that fact to an outcome they care about
3. Desire: one sentence on what the sender's offer makes possible
4. Action: a single low-friction ask (15-minute call, reply, resource)
Keep it under 120 words.`,
	},
	"bab": {
		Name: "Before-After-Bridge",
		Guidance: `Structure the email as Before-After-Bridge:
1. Before: the prospect's current state, grounded in the research
2. After: the improved state in concrete terms (numbers if available)
3. Bridge: the sender's offer as the path between the two
Keep it under 120 words. One clear call to action.`,
	},
}

// GetFramework returns the named framework or the default when unknown.
func GetFramework(id string) Framework {
	if f, ok := Frameworks[id]; ok {
		return f
	}
	return Frameworks[DefaultFrameworkID]
}

// BuildEmailPrompt synthesizes the secondary prompt for a derived email
// draft: research text, framework guidance, and sender offer details.
func BuildEmailPrompt(research, frameworkID, senderName, senderOffer string) string {
	f := GetFramework(frameworkID)

	var b strings.Builder
	b.WriteString("Write a cold outreach email based on this prospect research.\n\n")
	b.WriteString("**Research:**\n")
	b.WriteString(research)
	b.WriteString("\n\n**Framework (" + f.Name + "):**\n")
	b.WriteString(f.Guidance)
	if senderName != "" {
		b.WriteString("\n\n**Sender:** " + senderName)
	}
	if senderOffer != "" {
		b.WriteString("\n**Offer:** " + senderOffer)
	}
	b.WriteString("\n\nReturn only the email subject line and body. No commentary.")
	return b.String()
}
