// Package preview renders an HTML preview of the assembled source document
// after a successful build, and inventories its outbound links.
package preview

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// FileName is the preview artifact name inside a working directory.
const FileName = "preview.html"

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Render reads content.md from workDir, strips the metadata header, converts
// the body to HTML, writes preview.html, and returns its path plus the
// outbound links found in the rendered document.
func Render(workDir string) (string, []string, error) {
	src, err := os.ReadFile(filepath.Join(workDir, "content.md"))
	if err != nil {
		return "", nil, fmt.Errorf("read source document: %w", err)
	}

	body := stripHeader(src)

	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return "", nil, fmt.Errorf("render preview: %w", err)
	}

	path := filepath.Join(workDir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", nil, fmt.Errorf("write preview %s: %w", path, err)
	}

	links, err := extractLinks(buf.Bytes())
	if err != nil {
		return path, nil, fmt.Errorf("extract links: %w", err)
	}
	return path, links, nil
}

// stripHeader removes a leading `---` delimited block, returning the body.
func stripHeader(src []byte) []byte {
	open := []byte("---\n")
	if !bytes.HasPrefix(src, open) {
		return src
	}
	rest := src[len(open):]
	idx := bytes.Index(rest, open)
	if idx < 0 {
		return src
	}
	return rest[idx+len(open):]
}

// extractLinks walks the parsed HTML collecting href values of anchors.
func extractLinks(doc []byte) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links, nil
}
