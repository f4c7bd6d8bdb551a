package relay

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/foreman/internal/delivery"
	"github.com/user/foreman/internal/types"
)

// maxRelayedMessage caps one relayed transcript message before the target
// splits it into posts.
const maxRelayedMessage = 12000

var htmlTag = regexp.MustCompile(`(?i)<(p|div|br|pre|code|ul|ol|li|h[1-6]|a|table|strong|em)[\s/>]`)

// formatMessage renders one transcript message for a chat surface. HTML
// content (fetched pages, tool output) is converted to markdown.
func formatMessage(m types.Message) string {
	content := strings.TrimSpace(m.Content)
	if htmlTag.MatchString(content) {
		if md, err := htmltomarkdown.ConvertString(content); err == nil {
			content = strings.TrimSpace(md)
		}
	}
	if head, cut := delivery.Truncate(content, maxRelayedMessage); cut {
		content = head + "\n\n[truncated]"
	}
	return fmt.Sprintf("%s %s\n%s", roleIcon(m.Role), m.Role, content)
}

func roleIcon(role string) string {
	switch role {
	case "user":
		return "👤"
	case "assistant":
		return "🤖"
	case "tool":
		return "🔧"
	default:
		return "•"
	}
}

func formatProjectCreated(p types.ProjectCreated) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📁 Project *%s* created", deref(p.Name))
	if r := deref(p.Repository); r != "" {
		fmt.Fprintf(&b, "\nrepository: `%s`", r)
	}
	if d := deref(p.Description); d != "" {
		fmt.Fprintf(&b, "\n%s", d)
	}
	return b.String()
}

func formatProjectUpdated(id string, p types.ProjectUpdated) string {
	var changes []string
	if p.Name != nil {
		changes = append(changes, "name: "+*p.Name)
	}
	if p.Repository != nil {
		changes = append(changes, "repository: `"+*p.Repository+"`")
	}
	if p.Description != nil {
		changes = append(changes, "description: "+*p.Description)
	}
	return fmt.Sprintf("📁 Project *%s* updated\n%s", id, strings.Join(changes, "\n"))
}

func formatSessionHeader(id types.SessionID, title string) string {
	if title == "" {
		return fmt.Sprintf("🧵 Session *%s*", id)
	}
	return fmt.Sprintf("🧵 Session *%s*: %s", id, title)
}

func formatSessionUpdated(u types.SessionUpdated) string {
	var changes []string
	if u.Status != nil {
		changes = append(changes, "status → *"+string(*u.Status)+"*")
	}
	if u.Title != nil {
		changes = append(changes, "title: "+*u.Title)
	}
	if u.Preset != nil {
		changes = append(changes, "preset: "+*u.Preset)
	}
	return strings.Join(changes, "\n")
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
