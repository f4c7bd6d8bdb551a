package prompt

// DefaultSystem is the system prompt template. It uses Go text/template
// syntax with fields .Time, .SessionID, .Project, .Title and .Repository.
const DefaultSystem = `You are working on session {{.SessionID}} of project {{.Project}}{{if .Title}} ("{{.Title}}"){{end}}.

- Time: {{.Time}}
{{- if .Repository}}
- Repository: {{.Repository}} (your working directory)
{{- end}}

The transcript below is the conversation so far. Work in the repository, keep changes focused on the latest request, and finish with a short summary of what you changed and anything left for review.`
