package email

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Quoted-history markers. Everything from the first marker onward is the
// earlier conversation, not the latest reply.
var (
	onWroteRe   = regexp.MustCompile(`(?i)^on .{1,200}(wrote|a écrit|schrieb):\s*$`)
	origMsgRe   = regexp.MustCompile(`(?i)^-{2,}\s*(original message|forwarded message)\s*-{2,}$`)
	fromBlockRe = regexp.MustCompile(`(?i)^from:\s+.+$`)
)

// ExtractLatestReply strips quoted conversation history from a plain-text
// email body, returning only what the sender wrote this time. Gmail and most
// clients quote history below an "On ... wrote:" line or with ">" prefixes.
func ExtractLatestReply(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if onWroteRe.MatchString(trimmed) || origMsgRe.MatchString(trimmed) || fromBlockRe.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// HTMLToText renders an HTML email part as plain text. Script and style
// subtrees are dropped; block elements become line breaks. Used as the
// fallback when a multipart message has no text/plain part.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head").Remove()
	// Quoted history in Gmail HTML lives in blockquote/gmail_quote containers.
	doc.Find("blockquote, .gmail_quote").Remove()

	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, tr, li, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
