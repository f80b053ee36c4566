package generate

import (
	"fmt"
	"strings"
	"time"
)

// maxArticleChars keeps a single article from dominating the prompt.
const maxArticleChars = 1500

const newsletterSystem = `You are an editor who writes concise, well-structured email newsletters.
Write in Markdown. Do not invent facts that are not in the supplied articles.
Link each story to its source URL.`

// NewsletterPrompt renders the system and user prompts for one issue.
func NewsletterPrompt(req Request) (system, prompt string) {
	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Newsletter"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write issue #%d of %q dated %s.\n", req.IssueNumber, title, date.Format("January 2, 2006"))
	if f := strings.TrimSpace(req.Frequency); f != "" {
		fmt.Fprintf(&b, "This is a %s edition.\n", f)
	}
	b.WriteString("Start with a short introduction, then one section per story with a headline, ")
	b.WriteString("a two to four sentence summary and the source link. End with a brief sign-off.\n\n")
	fmt.Fprintf(&b, "Articles (%d):\n", len(req.Articles))
	for i, a := range req.Articles {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, strings.TrimSpace(a.Title))
		if a.Source != "" {
			fmt.Fprintf(&b, "   Source: %s\n", a.Source)
		}
		if a.URL != "" {
			fmt.Fprintf(&b, "   URL: %s\n", a.URL)
		}
		if c := clip(a.Content, maxArticleChars); c != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", c)
		}
	}
	return newsletterSystem, b.String()
}

var platformGuides = map[string]string{
	"twitter":  "a single tweet of at most 280 characters with one or two hashtags",
	"linkedin": "a professional LinkedIn post of three short paragraphs",
	"facebook": "a friendly Facebook post of two short paragraphs",
}

// SocialPrompt renders the prompts for a promotional post.
func SocialPrompt(req SocialRequest) (system, prompt string) {
	guide, ok := platformGuides[strings.ToLower(req.Platform)]
	if !ok {
		guide = "a short social media post"
	}
	system = "You write social media copy that promotes a newsletter issue. Reply with the post text only."

	var b strings.Builder
	fmt.Fprintf(&b, "Write %s promoting issue #%d of %q.\n", guide, req.IssueNumber, req.NewsletterTitle)
	if req.Link != "" {
		fmt.Fprintf(&b, "Include this link: %s\n", req.Link)
	}
	b.WriteString("\nNewsletter content:\n")
	b.WriteString(clip(req.Content, 4000))
	return system, b.String()
}

// FitPlatform enforces hard platform length limits.
func FitPlatform(platform, text string) string {
	text = strings.TrimSpace(text)
	if strings.EqualFold(platform, "twitter") {
		return clip(text, 280)
	}
	return text
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
