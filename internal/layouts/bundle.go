// Package layouts locates template bundles on disk and keeps them in sync
// with the layout bundle repository.
package layouts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TemplateFile is the entry template every bundle must carry.
const TemplateFile = "template.tex"

// Bundles manages the local layouts directory (one subdirectory per slug).
type Bundles struct {
	root string
}

// NewBundles returns a bundle manager rooted at dir.
func NewBundles(dir string) *Bundles {
	return &Bundles{root: dir}
}

// Root returns the layouts directory.
func (b *Bundles) Root() string { return b.root }

// Path returns the bundle directory for a slug, or an error if it does not
// exist or lacks the entry template.
func (b *Bundles) Path(slug string) (string, error) {
	dir := filepath.Join(b.root, slug)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("layout bundle %q: %w", slug, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("layout bundle %q: %s is not a directory", slug, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, TemplateFile)); err != nil {
		return "", fmt.Errorf("layout bundle %q is missing %s: %w", slug, TemplateFile, err)
	}
	return dir, nil
}

// Slugs lists the bundle slugs currently available (directories containing the
// entry template).
func (b *Bundles) Slugs() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("read layouts dir %s: %w", b.root, err)
	}
	var slugs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(b.root, e.Name(), TemplateFile)); err == nil {
			slugs = append(slugs, e.Name())
		}
	}
	return slugs, nil
}

// CopyInto copies the bundle for slug into dst (flat recursive copy).
func (b *Bundles) CopyInto(slug, dst string) error {
	src, err := b.Path(slug)
	if err != nil {
		return err
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
