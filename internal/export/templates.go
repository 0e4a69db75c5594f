package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var storyTemplate = template.Must(template.New("story").Parse(storyHTML))

// TemplateData holds data for story template rendering
type TemplateData struct {
	Title     string
	BodyHTML  template.HTML
	Author    string
	Topics    []string
	UpdatedAt time.Time
	Comments  []TemplateComment
}

// TemplateComment holds comment data for the template
type TemplateComment struct {
	Author string
	Body   string
}

// RenderStoryHTML renders the story template with provided data
func RenderStoryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := storyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BodyToHTML turns plain story text into paragraph markup. Blank lines
// separate paragraphs; everything else is escaped.
func BodyToHTML(body string) template.HTML {
	var b strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(template.HTMLEscapeString(para))
		b.WriteString("</p>\n")
	}
	return template.HTML(b.String())
}

const storyHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .comment .author { font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}}{{if .Topics}} | {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{end}}{{end}}</div>
  <div>{{.BodyHTML}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="comment"><span class="author">{{if .Author}}{{.Author}}{{else}}Anonymous{{end}}</span><p>{{.Body}}</p></div>{{end}}
  {{end}}
</body>
</html>`
