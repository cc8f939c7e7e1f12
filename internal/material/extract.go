package material

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements は本文抽出で無視する要素。
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"button":   true,
}

// blockElements は前後に改行を入れる要素。
var blockElements = map[string]bool{
	"p":          true,
	"div":        true,
	"section":    true,
	"article":    true,
	"main":       true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"li":         true,
	"tr":         true,
	"br":         true,
	"blockquote": true,
	"pre":        true,
}

// extractContent はHTMLからタイトルと本文テキストを抽出する。
// ナビゲーションやスクリプトなど学習内容と無関係な要素は除外する。
// パースに失敗しないhtml.Parseの性質上、壊れたHTMLでもベストエフォートで抽出する。
func extractContent(page []byte) (title, text string) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
			if n.Data == "title" && title == "" {
				title = strings.TrimSpace(nodeText(n))
				return
			}
			if blockElements[n.Data] {
				sb.WriteByte('\n')
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return title, normalizeWhitespace(sb.String())
}

// nodeText はノード配下のテキストを連結して返す。
func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// normalizeWhitespace は行内の連続空白を1つにまとめ、空行を除去する。
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
