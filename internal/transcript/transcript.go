// ABOUTME: Transcript export — renders a conversation snapshot to a
// ABOUTME: standalone HTML page, with message bodies treated as markdown.

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/quill-labs/quill-agent/internal/protocol"
	"github.com/quill-labs/quill-agent/internal/session"
)

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Agent transcript {{.SessionID}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.user { background: #eef3ff; }
.assistant { background: #f4f4f4; }
.system { background: #fff3e0; font-style: italic; }
.meta { color: #666; font-size: 0.8rem; margin-bottom: 0.25rem; }
.suggestion { border-left: 3px solid #888; margin: 0.5rem 0; padding: 0.25rem 0.75rem; }
pre { background: #282828; color: #eee; padding: 0.75rem; border-radius: 6px; overflow-x: auto; }
</style>
</head>
<body>
<h1>Agent transcript</h1>
<p class="meta">Session {{.SessionID}} &middot; exported {{.Exported}}</p>
{{range .Messages}}<div class="message {{.Role}}">
<div class="meta">{{.Role}} &middot; {{.Time}}</div>
{{.Body}}
{{range .Suggestions}}<div class="suggestion">
<div class="meta">suggestion: {{.Kind}}{{if .TargetID}} &rarr; {{.TargetID}}{{end}}</div>
{{if .Code}}<pre>{{.Code}}</pre>{{end}}
</div>
{{end}}</div>
{{end}}</body>
</html>
`))

type pageMessage struct {
	Role        string
	Time        string
	Body        template.HTML
	Suggestions []protocol.Suggestion
}

type pageData struct {
	SessionID string
	Exported  string
	Messages  []pageMessage
}

// WriteHTML renders the conversation snapshot to w as a standalone HTML page.
// Message content is converted from markdown; a body that fails to convert is
// carried as preformatted text rather than dropped.
func WriteHTML(w io.Writer, snap session.Snapshot) error {
	data := pageData{
		SessionID: snap.SessionID,
		Exported:  time.Now().Format(time.RFC1123),
	}
	if data.SessionID == "" {
		data.SessionID = "(not established)"
	}

	for _, msg := range snap.Messages {
		var htmlBuf bytes.Buffer
		if err := goldmark.Convert([]byte(msg.Content), &htmlBuf); err != nil {
			htmlBuf.Reset()
			htmlBuf.WriteString("<pre>")
			template.HTMLEscape(&htmlBuf, []byte(msg.Content))
			htmlBuf.WriteString("</pre>")
		}
		data.Messages = append(data.Messages, pageMessage{
			Role:        string(msg.Role),
			Time:        msg.CreatedAt.Format("15:04:05"),
			Body:        template.HTML(htmlBuf.String()),
			Suggestions: msg.Suggestions,
		})
	}

	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}
	return nil
}
