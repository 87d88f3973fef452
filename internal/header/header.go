// Package header assembles the metadata block prepended to a document source
// before typesetting. The block is front-matter shaped: `---` sentinel lines
// around line-oriented `key: value` pairs.
//
// Key order is deliberate and stable: declared fields first (in declaration
// order), then layout assets (in association order), then the qrcode path,
// then the working directory path. The format is line-oriented so consumers
// parse out-of-order keys fine, but existing templates read better this way.
package header

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/docpress/internal/assets"
	"git.home.luguber.info/inful/docpress/internal/model"
)

const sentinel = "---"

// Input carries everything the header needs.
type Input struct {
	// Fields are the content type's declarations, in declaration order.
	Fields []model.ContentTypeField
	// Serialized is the instance's field value map.
	Serialized map[string]string
	// Assets are the layout's assets, in association order.
	Assets []model.Asset
	// QRPath is the generated QR image path inside the working directory.
	QRPath string
	// WorkDir is the per-instance working directory.
	WorkDir string
}

// Assemble renders the complete header block including both sentinels and a
// trailing newline, ready to be concatenated with the raw body.
//
// Declared fields missing from Serialized are omitted silently. Assets whose
// URL resolution fails are skipped with a warning; an unreachable logo must
// not abort a typeset run.
func Assemble(in Input, resolver assets.URLResolver) string {
	var b strings.Builder
	b.WriteString(sentinel)
	b.WriteByte('\n')

	for _, f := range in.Fields {
		v, ok := in.Serialized[f.Name]
		if !ok {
			continue
		}
		writePair(&b, f.Name, v)
	}

	for _, a := range in.Assets {
		u, err := resolver.Resolve(a)
		if err != nil {
			slog.Warn("Skipping asset with unresolvable URL", "asset", a.Name, "error", err)
			continue
		}
		writePair(&b, a.Name, trimLeadingByte(u))
	}

	writePair(&b, "qrcode", in.QRPath)
	writePair(&b, "path", in.WorkDir)

	b.WriteString(sentinel)
	b.WriteByte('\n')
	return b.String()
}

// Document concatenates an assembled header with the instance's raw body.
func Document(headerBlock, rawBody string) string {
	if rawBody == "" {
		return headerBlock
	}
	return headerBlock + "\n" + rawBody
}

func writePair(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

// trimLeadingByte drops the first byte of a resolved asset URL. Existing
// templates were authored against URLs emitted this way, so the quirk is
// load-bearing; see DESIGN.md before changing it.
func trimLeadingByte(u string) string {
	if len(u) == 0 {
		return u
	}
	return u[1:]
}
