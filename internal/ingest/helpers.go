package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// htmlToText strips markup from an html or xhtml atom text construct.
func htmlToText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return normalizeSpace(doc.Text())
}

// appendUnique appends a string to a slice if it doesn't already exist (case-insensitive).
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}

	vLower := strings.ToLower(vClean)
	for _, existing := range list {
		if strings.ToLower(existing) == vLower {
			return list
		}
	}
	return append(list, vClean)
}

// uniqueCodes keeps the first occurrence of each code, in order.
func uniqueCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = appendUnique(out, c)
	}
	return out
}

// textAt returns the trimmed text of the first node matching expr under n.
func textAt(n *xmlquery.Node, expr *xpath.Expr) string {
	if m := xmlquery.QuerySelector(n, expr); m != nil {
		return strings.TrimSpace(m.InnerText())
	}
	return ""
}

// attrAt returns an attribute of the first node matching expr under n.
func attrAt(n *xmlquery.Node, expr *xpath.Expr, name string) string {
	if m := xmlquery.QuerySelector(n, expr); m != nil {
		return strings.TrimSpace(m.SelectAttr(name))
	}
	return ""
}

// textsAt returns the trimmed text of every node matching expr, in document order.
func textsAt(n *xmlquery.Node, expr *xpath.Expr) []string {
	nodes := xmlquery.QuerySelectorAll(n, expr)
	out := make([]string, 0, len(nodes))
	for _, m := range nodes {
		if v := strings.TrimSpace(m.InnerText()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// firstNonEmpty returns the first argument that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
