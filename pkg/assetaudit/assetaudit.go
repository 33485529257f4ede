// Package assetaudit checks that the staged markup and stylesheet only point
// at files that were actually staged.
//
// References are collected from the parsed HTML (src, href, srcset, poster,
// data-src, inline styles and <style> blocks) and from url(...) in the
// compiled stylesheet. Remote, protocol-relative, fragment-only and data:
// references are ignored. The audit never modifies the output directory.
package assetaudit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/paulschiretz/pgl-stage/pkg/hints"
	"github.com/paulschiretz/pgl-stage/pkg/plog"
	"github.com/paulschiretz/pgl-stage/pkg/util"
)

var ErrDisabled = hints.New("asset audit is disabled")

// ErrMissingReferences is returned in strict mode when any reference is unresolved.
var ErrMissingReferences = errors.New("unresolved asset references")

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

// Reference is one local reference found in a staged file.
type Reference struct {
	File  string // scanned file, relative to the output directory
	Value string // reference as written
}

// Report summarises one audit.
type Report struct {
	Checked int
	Missing []Reference
}

// Auditor runs audits.
type Auditor struct{}

// NewAuditor returns an Auditor.
func NewAuditor() *Auditor {
	return &Auditor{}
}

// Audit scans the markup and stylesheet inside absOutputDir. Missing scanned
// files are skipped. Unresolved references are logged as warnings and, when
// the plan is strict, returned as ErrMissingReferences.
func (a *Auditor) Audit(ctx context.Context, absOutputDir string, p *Plan) (*Report, error) {
	if !p.Enabled {
		return nil, ErrDisabled
	}
	if p.DryRun {
		plog.Info("[DRY RUN] AUDIT", "path", absOutputDir)
		return &Report{}, nil
	}

	report := &Report{}
	scans := []struct {
		file    string
		collect func([]byte) ([]string, error)
	}{
		{p.MarkupFile, CollectHTMLRefs},
		{p.StylesheetFile, func(b []byte) ([]string, error) { return CollectCSSRefs(string(b)), nil }},
	}

	for _, s := range scans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.file == "" {
			continue
		}
		absFile := filepath.Join(absOutputDir, filepath.FromSlash(s.file))
		data, err := os.ReadFile(absFile)
		if err != nil {
			if os.IsNotExist(err) {
				plog.Debug("Audit skipped missing file", "file", s.file)
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", absFile, err)
		}

		refs, err := s.collect(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.file, err)
		}
		for _, ref := range refs {
			report.Checked++
			if !resolves(absOutputDir, filepath.Dir(absFile), ref) {
				report.Missing = append(report.Missing, Reference{File: s.file, Value: ref})
				plog.Warn("Unresolved asset reference", "file", s.file, "ref", ref)
			}
		}
	}

	plog.Info("Asset audit finished", "checked", report.Checked, "missing", len(report.Missing))
	if p.Strict && len(report.Missing) > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrMissingReferences, len(report.Missing), report.Checked)
	}
	return report, nil
}

// CollectHTMLRefs returns the local references of an HTML document in
// document order.
func CollectHTMLRefs(data []byte) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	var refs []string
	add := func(v string) {
		if v = strings.TrimSpace(v); isLocal(v) {
			refs = append(refs, v)
		}
	}

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				switch attr.Key {
				case "src", "href", "poster", "data-src":
					add(attr.Val)
				case "srcset":
					for _, entry := range strings.Split(attr.Val, ",") {
						if parts := strings.Fields(entry); len(parts) > 0 {
							add(parts[0])
						}
					}
				case "style":
					for _, u := range CollectCSSRefs(attr.Val) {
						add(u)
					}
				}
			}
			if n.Data == "style" {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						for _, u := range CollectCSSRefs(c.Data) {
							add(u)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return refs, nil
}

// CollectCSSRefs returns the local url(...) references in css.
func CollectCSSRefs(css string) []string {
	var refs []string
	for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		if isLocal(m[1]) {
			refs = append(refs, m[1])
		}
	}
	return refs
}

// isLocal reports whether ref points into the site rather than elsewhere.
func isLocal(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Path != ""
}

// resolves reports whether ref, as seen from absBaseDir, names an existing
// file or directory inside absOutputDir. Root-relative refs start at the
// output directory.
func resolves(absOutputDir, absBaseDir, ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	p := u.Path

	var target string
	if strings.HasPrefix(p, "/") {
		target = filepath.Join(absOutputDir, filepath.FromSlash(path.Clean(p)))
	} else {
		target = filepath.Join(absBaseDir, filepath.FromSlash(p))
	}
	if !util.IsWithin(absOutputDir, target) {
		return false
	}
	_, err = os.Stat(target)
	return err == nil
}
