package mailparse

import (
	"bytes"
	"strings"

	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sanitize removes script and style elements, event handler attributes and
// javascript: links from an HTML document. Unparseable input is returned with
// all tags stripped.
func Sanitize(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return stripTags(doc)
	}
	clean(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return stripTags(doc)
	}
	return buf.String()
}

func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			n.RemoveChild(c)
		} else {
			if c.Type == html.ElementNode {
				c.Attr = safeAttrs(c.Attr)
			}
			clean(c)
		}
		c = next
	}
}

func safeAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if (key == "href" || key == "src") &&
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// HTMLToText derives a plain text rendition of an HTML body
func HTMLToText(doc string) string {
	text, err := html2text.FromString(doc, html2text.Options{OmitLinks: true})
	if err != nil {
		return stripTags(doc)
	}
	return strings.TrimSpace(text)
}

// stripTags keeps only the text tokens of doc, skipping script and style
// content
func stripTags(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHidden(tag []byte) bool {
	t := string(tag)
	return t == "script" || t == "style"
}
