package tracking

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Instrument rewrites every http(s) link of doc through the click endpoint and
// appends the open pixel to the body
func (t *Tokens) Instrument(doc string, emailID uint) string {
	pixel := `<img src="` + html.EscapeString(t.OpenURL(emailID)) + `" width="1" height="1" alt="" style="display:none">`

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc + pixel
	}

	var body *html.Node
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.A:
				for i, a := range n.Attr {
					if strings.EqualFold(a.Key, "href") && IsWebURL(a.Val) {
						n.Attr[i].Val = t.ClickURL(emailID, a.Val)
					}
				}
			case atom.Body:
				if body == nil {
					body = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)

	if body != nil {
		body.AppendChild(&html.Node{
			Type:     html.ElementNode,
			Data:     "img",
			DataAtom: atom.Img,
			Attr: []html.Attribute{
				{Key: "src", Val: t.OpenURL(emailID)},
				{Key: "width", Val: "1"},
				{Key: "height", Val: "1"},
				{Key: "alt", Val: ""},
				{Key: "style", Val: "display:none"},
			},
		})
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return doc + pixel
	}
	return buf.String()
}

// IsWebURL reports whether s is an absolute http or https URL
func IsWebURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
