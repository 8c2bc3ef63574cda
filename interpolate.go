package affix

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// TokenFunc renders one interpolation token for an attachment and style.
type TokenFunc func(a *Attachment, style string) string

// TokenSource is implemented by backends that contribute tokens of their own,
// such as a bucket URL.
type TokenSource interface {
	Tokens() map[string]TokenFunc
}

// URLTokenSource is implemented by token sources whose tokens render a full
// URL from the attachment's path. Those tokens cannot appear in the path
// template.
type URLTokenSource interface {
	URLTokens() []string
}

var tokenRegex = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Interpolator renders key and URL templates. A token is a colon followed by
// the longest registered name that prefixes the identifier there, so
// ":id_:style" renders as "1_original". Identifiers with no registered
// prefix are left in place.
type Interpolator struct {
	tokens map[string]TokenFunc
}

// NewInterpolator returns an interpolator with the built-in tokens.
func NewInterpolator() *Interpolator {
	return &Interpolator{tokens: map[string]TokenFunc{
		"attachment":   tokenAttachment,
		"style":        tokenStyle,
		"filename":     tokenFilename,
		"basename":     tokenBasename,
		"extension":    tokenExtension,
		"id":           tokenID,
		"id_partition": tokenIDPartition,
		"class":        tokenClass,
		"timestamp":    tokenTimestamp,
	}}
}

// Register adds or replaces a token.
func (i *Interpolator) Register(name string, fn TokenFunc) {
	i.tokens[name] = fn
}

// With returns a copy of i extended with extra. i is not modified.
func (i *Interpolator) With(extra map[string]TokenFunc) *Interpolator {
	tokens := maps.Clone(i.tokens)
	maps.Copy(tokens, extra)
	return &Interpolator{tokens: tokens}
}

// Tokens lists the known token names in sorted order.
func (i *Interpolator) Tokens() []string {
	return slices.Sorted(maps.Keys(i.tokens))
}

// Interpolate renders tmpl. It performs no I/O and is deterministic for a
// given attachment state.
func (i *Interpolator) Interpolate(tmpl string, a *Attachment, style string) string {
	return tokenRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		name, ok := i.resolve(match[1:])
		if !ok {
			return match
		}
		return i.tokens[name](a, style) + match[1+len(name):]
	})
}

// Referenced returns the registered tokens tmpl uses, in order of appearance.
func (i *Interpolator) Referenced(tmpl string) []string {
	var names []string
	for _, match := range tokenRegex.FindAllString(tmpl, -1) {
		if name, ok := i.resolve(match[1:]); ok {
			names = append(names, name)
		}
	}
	return names
}

// resolve finds the longest registered token name prefixing ident.
func (i *Interpolator) resolve(ident string) (string, bool) {
	for n := len(ident); n > 0; n-- {
		if _, ok := i.tokens[ident[:n]]; ok {
			return ident[:n], true
		}
	}
	return "", false
}

func tokenAttachment(a *Attachment, _ string) string {
	return inflection.Plural(a.Name())
}

func tokenStyle(_ *Attachment, style string) string {
	return style
}

func tokenFilename(a *Attachment, _ string) string {
	return a.FileName()
}

func tokenBasename(a *Attachment, _ string) string {
	name := a.FileName()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func tokenExtension(a *Attachment, style string) string {
	if s, ok := a.options.Styles[style]; ok && s.Format != "" {
		return s.Format
	}
	return strings.TrimPrefix(filepath.Ext(a.FileName()), ".")
}

func tokenID(a *Attachment, _ string) string {
	return a.record.ID()
}

// tokenIDPartition splits numeric ids into three-digit directories so a
// single directory never holds more than a thousand entries.
func tokenIDPartition(a *Attachment, _ string) string {
	id := a.record.ID()
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n > 999_999_999 {
		return id
	}
	padded := fmt.Sprintf("%09d", n)
	return padded[0:3] + "/" + padded[3:6] + "/" + padded[6:9]
}

func tokenClass(a *Attachment, _ string) string {
	return inflection.Plural(strcase.ToSnake(a.record.ClassName()))
}

func tokenTimestamp(a *Attachment, _ string) string {
	ts := a.UpdatedAt()
	if ts.IsZero() {
		return ""
	}
	return strconv.FormatInt(ts.Unix(), 10)
}
