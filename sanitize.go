package sentimint

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// droppedElements never carry prose worth analyzing
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"form":     true,
	"input":    true,
	"button":   true,
	"select":   true,
	"option":   true,
	"textarea": true,
	"label":    true,
	"fieldset": true,
	"frame":    true,
	"frameset": true,
	"iframe":   true,
	"object":   true,
	"embed":    true,
	"applet":   true,
	"svg":      true,
	"canvas":   true,
	"link":     true,
	"meta":     true,
	"head":     true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
}

// Sanitize strips markup that does not carry readable content from an HTML document.
// Scripts, styles, comments, forms, frames, embedded objects and page chrome are
// removed, all attributes are dropped and whitespace runs are collapsed.
// The result is the rendered inner HTML of the document body.
func Sanitize(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	clean(doc)

	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}

	return strings.TrimSpace(buf.String())
}

// clean removes dropped nodes below n and strips attributes in place
func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode, c.Type == html.DoctypeNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && droppedElements[c.Data]:
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			c.Data = collapseWhitespace(c.Data)
			if c.Data == "" {
				n.RemoveChild(c)
			}
		default:
			c.Attr = nil
			clean(c)
		}
		c = next
	}
}

// collapseWhitespace folds every whitespace run into one space
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}

	out := strings.Join(fields, " ")
	if strings.TrimLeft(s[:1], " \t\n\r\f") == "" {
		out = " " + out
	}
	if strings.TrimRight(s[len(s)-1:], " \t\n\r\f") == "" {
		out += " "
	}
	return out
}

// findElement returns the first element named tag in document order
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
