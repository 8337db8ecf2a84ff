// Package render turns transcript text into HTML fragments for the browser UI.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/antoniostano/chatdesk/internal/session"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	sanitizer = bluemonday.UGCPolicy().AddTargetBlankToFullyQualifiedLinks(true)
)

// Markdown converts model output to sanitized HTML.
func Markdown(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		log.Debug().Err(err).Msg("markdown conversion failed, falling back to plain text")
		return PlainText(text)
	}
	return sanitizer.Sanitize(buf.String())
}

// PlainText escapes text and keeps its line breaks.
func PlainText(text string) string {
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

// Turn renders user turns verbatim and model turns as markdown.
func Turn(turn session.Turn) string {
	if turn.Role == session.RoleModel {
		return Markdown(turn.Text)
	}
	return PlainText(turn.Text)
}
