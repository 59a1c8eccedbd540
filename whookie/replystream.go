// SPDX-License-Identifier: GPL-3.0-or-later

package whookie

import (
	"fmt"
	"strings"
)

// Format selects how a [ReplyStream] renders its content.
type Format int

const (
	// Text renders plain, tab-separated text.
	Text Format = iota
	// HTML renders a minimal self-contained HTML page.
	HTML
)

// ParseFormat maps the "format" query option to a [Format], defaulting to
// HTML when opt is empty or unrecognized.
func ParseFormat(opt string) Format {
	switch strings.ToLower(opt) {
	case "text", "txt":
		return Text
	default:
		return HTML
	}
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	if f == Text {
		return "text/plain; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// ReplyStream accumulates a Whookie hook's reply, rendering either plain
// text or a minimal HTML page depending on the requester's "format" option.
//
// Grounded on the original implementation's ReplyStream.cpp: the same small
// set of section/table/text primitives, reimplemented as buffer-writing Go
// methods instead of iostream insertion.
type ReplyStream struct {
	format Format
	buf    strings.Builder
}

// NewReplyStream creates a [ReplyStream] rendering in format, with title
// used as the HTML page's <title> (ignored in [Text] mode).
func NewReplyStream(format Format, title string) *ReplyStream {
	rs := &ReplyStream{format: format}
	if format == HTML {
		fmt.Fprintf(&rs.buf, "<html><head><title>%s</title></head><body>\n<h1>%s</h1>\n", title, title)
	}
	return rs
}

// Format returns the stream's rendering format.
func (rs *ReplyStream) Format() Format {
	return rs.format
}

// Section inserts a section heading at level (1 is most prominent).
func (rs *ReplyStream) Section(label string, level int) {
	switch rs.format {
	case Text:
		fmt.Fprintf(&rs.buf, "%s\n", label)
	case HTML:
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(&rs.buf, "<h%d>%s</h%d>\n", level, label, level)
	}
}

// Text inserts a plain paragraph of text.
func (rs *ReplyStream) Text(text string) {
	switch rs.format {
	case Text:
		fmt.Fprintf(&rs.buf, "%s\n", text)
	case HTML:
		fmt.Fprintf(&rs.buf, "<p>%s</p>\n", text)
	}
}

// KV is one row of a [ReplyStream.Table].
type KV struct {
	Key   string
	Value string
}

// Table inserts a two-column table, optionally labeled, optionally
// highlighting the first row (used for a header row in HTML mode).
func (rs *ReplyStream) Table(rows []KV, label string, highlightTop bool) {
	switch rs.format {
	case Text:
		if label != "" {
			fmt.Fprintf(&rs.buf, "%s\n", label)
		}
		for _, row := range rows {
			fmt.Fprintf(&rs.buf, "%s\t%s\n", row.Key, row.Value)
		}
	case HTML:
		if label != "" {
			fmt.Fprintf(&rs.buf, "<h3>%s</h3>\n", label)
		}
		rs.buf.WriteString("<table border=\"1\">\n")
		for i, row := range rows {
			style := ""
			if i == 0 && highlightTop {
				style = " style=\"background-color:#ddd\""
			}
			fmt.Fprintf(&rs.buf, "<tr%s><td>%s</td><td>%s</td></tr>\n", style, row.Key, row.Value)
		}
		rs.buf.WriteString("</table>\n")
	}
}

// String renders the accumulated reply, closing the HTML document if
// applicable.
func (rs *ReplyStream) String() string {
	if rs.format == HTML {
		return rs.buf.String() + "</body></html>\n"
	}
	return rs.buf.String()
}
