package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Marker identifies message text that references an automation screenshot.
const Marker = "appium-screenshot"

// messageTag is the result document element that carries log messages.
const messageTag = "msg"

var (
	// canonicalPattern finds a screenshot basename anywhere in a string,
	// tolerating whatever was prepended to it upstream.
	canonicalPattern = regexp.MustCompile(`appium-screenshot-([0-9]+)\.png`)

	// referencePattern matches a quoted src or href attribute value.
	referencePattern = regexp.MustCompile(`((?:src|href)\s*=\s*")([^"]*)(")`)
)

// ExtractCanonical returns the canonical screenshot basename found in s,
// e.g. "appium-screenshot-5.png" for "Suites.try test-appium-screenshot-5.png".
// The number is normalised (leading zeros dropped). When s holds several
// basenames the last one wins.
func ExtractCanonical(s string) (string, bool) {
	matches := canonicalPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return "", false
	}
	digits := strings.TrimLeft(matches[len(matches)-1][1], "0")
	if digits == "" {
		digits = "0"
	}
	return Marker + "-" + digits + ".png", true
}

// QualifiedName is the run-unique name of a screenshot.
func QualifiedName(deviceIndex int, displayName, canonical string) string {
	return strconv.Itoa(deviceIndex) + "-" + displayName + "-" + canonical
}

// RewriteMessage qualifies the screenshot references of one message text.
//
// Every src/href attribute value mentioning the marker is replaced by
// QualifiedName of its canonical basename. A value that mentions the marker
// without a numbered basename takes the last basename found anywhere in the
// text. Text without a canonical
// basename is returned unchanged, byte for byte. The boolean reports
// whether anything changed.
//
// Rewriting an already qualified text yields the same text.
func RewriteMessage(text string, deviceIndex int, displayName string) (string, bool) {
	if !strings.Contains(text, Marker) {
		return text, false
	}
	fallback, ok := ExtractCanonical(text)
	if !ok {
		return text, false
	}

	out := referencePattern.ReplaceAllStringFunc(text, func(ref string) string {
		parts := referencePattern.FindStringSubmatch(ref)
		value := parts[2]
		if !strings.Contains(value, Marker) {
			return ref
		}
		canonical, found := ExtractCanonical(value)
		if !found {
			canonical = fallback
		}
		return parts[1] + QualifiedName(deviceIndex, displayName, canonical) + parts[3]
	})

	return out, out != text
}

// RewriteFile qualifies every screenshot reference of a result document in
// place.
//
// The document is parsed fully, every element is visited depth first, and
// the message elements are rewritten. The file is replaced only after the
// whole tree has been processed and serialised; on any failure it is left
// as it was. A document without screenshot references is not rewritten.
//
// Parameters:
//   - path: Result document to rewrite
//   - deviceIndex: Index of the device that produced it
//   - displayName: Suite display name
//
// Returns:
//   - int: Number of rewritten messages
//   - error: Wraps ErrRewrite
func RewriteFile(path string, deviceIndex int, displayName string) (int, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return 0, fmt.Errorf("%w: parsing %s: %w", ErrRewrite, path, err)
	}

	root := doc.Root()
	if root == nil {
		return 0, fmt.Errorf("%w: %s has no root element", ErrRewrite, path)
	}

	n := rewriteElement(root, deviceIndex, displayName)
	if n == 0 {
		return 0, nil
	}

	data, err := doc.WriteToBytes()
	if err != nil {
		return 0, fmt.Errorf("%w: serialising %s: %w", ErrRewrite, path, err)
	}
	if err := replaceFile(path, data); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRewrite, err)
	}

	return n, nil
}

// rewriteElement walks el and its descendants depth first. Each call owns
// its position in the tree, so no cursor is shared between levels.
func rewriteElement(el *etree.Element, deviceIndex int, displayName string) int {
	n := 0
	if el.Tag == messageTag {
		if text, changed := RewriteMessage(el.Text(), deviceIndex, displayName); changed {
			el.SetText(text)
			n++
		}
	}
	for _, child := range el.ChildElements() {
		n += rewriteElement(child, deviceIndex, displayName)
	}
	return n
}

// replaceFile swaps data into path through a temporary sibling.
func replaceFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
