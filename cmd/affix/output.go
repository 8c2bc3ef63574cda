package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/sagarc03/affix"
)

// recordView is the printable form of a record and its attachments.
type recordView struct {
	Class       string                 `json:"class" yaml:"class"`
	ID          string                 `json:"id" yaml:"id"`
	Attributes  map[string]any         `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Attachments []affix.AttachmentInfo `json:"attachments" yaml:"attachments"`
}

func newRecordView(rec *affix.MapRecord, attachments []*affix.Attachment) recordView {
	v := recordView{
		Class:       rec.ClassName(),
		ID:          rec.ID(),
		Attributes:  rec.Attributes(),
		Attachments: make([]affix.AttachmentInfo, 0, len(attachments)),
	}
	for _, a := range attachments {
		v.Attachments = append(v.Attachments, affix.Describe(a))
	}
	return v
}

// printValue writes v in the given format: json, yaml or text.
func printValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return printText(w, v)
	default:
		return fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
	}
}

func printText(w io.Writer, v any) error {
	switch v := v.(type) {
	case recordView:
		_, _ = fmt.Fprintf(w, "%s/%s\n", v.Class, v.ID)
		for _, info := range v.Attachments {
			printInfo(w, info, "  ")
		}
	case affix.AttachmentInfo:
		printInfo(w, v, "")
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
	return nil
}

func printInfo(w io.Writer, info affix.AttachmentInfo, indent string) {
	if !info.Present {
		_, _ = fmt.Fprintf(w, "%s%s: (none)\n", indent, info.Name)
	} else {
		line := fmt.Sprintf("%s%s: %s (%s, %s", indent, info.Name, info.FileName,
			info.ContentType, humanize.Bytes(uint64(max(info.FileSize, 0))))
		if info.UpdatedAt != nil {
			line += ", updated " + humanize.Time(*info.UpdatedAt)
		}
		_, _ = fmt.Fprintln(w, line+")")
	}

	for _, style := range slices.Sorted(maps.Keys(info.Styles)) {
		_, _ = fmt.Fprintf(w, "%s  %-*s %s\n", indent, styleWidth(info.Styles), style, info.Styles[style])
	}
}

func styleWidth(styles map[string]string) int {
	width := 0
	for style := range styles {
		width = max(width, len(style))
	}
	return width
}

// confirmText describes what a destructive command is about to remove.
func confirmText(ref affix.RecordRef, slots ...string) string {
	if len(slots) == 0 {
		return fmt.Sprintf("Delete %s and all of its attachments", ref)
	}
	return fmt.Sprintf("Detach %s from %s", strings.Join(slots, ", "), ref)
}
