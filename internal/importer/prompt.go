package importer

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	bulletPrefix  = regexp.MustCompile(`^[\x{00b7}\x{2022}\s]+`)
	domainPattern = regexp.MustCompile(`\.(com|ca|net|org|io)`)
)

// BuiltRow is the label and research prompt for one record.
type BuiltRow struct {
	Label  string
	Prompt string
}

// BuildPrompt renders the research prompt for one record under a column
// mapping. idx is the zero-based record position, used for the fallback
// label when no company column is mapped.
func BuildPrompt(record, mapping map[string]string, idx int) BuiltRow {
	label := cell(record, mapping, "company")
	if label == "" {
		label = fmt.Sprintf("Prospect %d", idx+1)
	}

	url := cell(record, mapping, "website")
	email := cell(record, mapping, "email")
	// Spreadsheets routinely put the site in the email column.
	if url == "" && email != "" && looksLikeURL(email) {
		url, email = email, ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research this prospect:\n\n**Company:** %s", label)
	writeField(&b, "Website", url)
	writeField(&b, "Contact", cell(record, mapping, "contact"))
	writeField(&b, "Title", cell(record, mapping, "title"))
	writeField(&b, "Email", email)
	writeField(&b, "Phone", cell(record, mapping, "phone"))
	writeField(&b, "Address", cell(record, mapping, "address"))
	writeField(&b, "Industry/Category", cell(record, mapping, "industry"))
	writeField(&b, "Rating", cell(record, mapping, "rating"))
	writeField(&b, "Reviews", cell(record, mapping, "reviews"))
	writeField(&b, "Additional Context", cell(record, mapping, "notes"))
	b.WriteString("\n\nUse web search to find the most current information.")

	return BuiltRow{Label: label, Prompt: b.String()}
}

// BuildRows renders every record of a batch.
func BuildRows(batch *Batch, mapping map[string]string) []BuiltRow {
	out := make([]BuiltRow, len(batch.Records))
	for i, record := range batch.Records {
		out[i] = BuildPrompt(record, mapping, i)
	}
	return out
}

func cell(record, mapping map[string]string, role string) string {
	header := mapping[role]
	if header == "" {
		return ""
	}
	return clean(record[header])
}

// clean strips leading bullet glyphs some spreadsheet exports prepend.
func clean(v string) string {
	return strings.TrimSpace(bulletPrefix.ReplaceAllString(v, ""))
}

func looksLikeURL(v string) bool {
	return strings.HasPrefix(v, "http") || strings.Contains(v, "www.") || domainPattern.MatchString(v)
}

func writeField(b *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(b, "\n**%s:** %s", name, value)
	}
}
