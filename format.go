package cuke

import (
	"strings"
	"unicode/utf8"

	messages "github.com/cucumber/messages/go/v21"
)

// Format renders a Gherkin document in canonical form: two-space indentation,
// one blank line between sections, aligned table pipes, and comments kept in
// source order. The input is the raw document as parsed, not the expanded
// tree, so Scenario Outlines survive formatting intact.
func Format(doc *messages.GherkinDocument) string {
	var b strings.Builder

	f := &formatter{b: &b}
	if doc != nil {
		f.comments = doc.Comments
	}
	if doc != nil && doc.Feature != nil {
		f.feature(doc.Feature)
	}
	f.flushRemaining()

	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return ""
	}

	return out + "\n"
}

// formatter walks the document emitting canonical source. Comments are
// hoisted to the document root by the parser, so each node flushes the
// comments that precede it in the original source before writing itself.
type formatter struct {
	b        *strings.Builder
	comments []*messages.Comment
	next     int
	indent   int
}

func (f *formatter) write(s string) {
	f.b.WriteString(s)
}

func (f *formatter) writeLine(s string) {
	f.writeIndent()
	f.write(s)
	f.write("\n")
}

func (f *formatter) writeIndent() {
	for range f.indent {
		f.write("  ")
	}
}

func (f *formatter) blankLine() {
	f.write("\n")
}

// flushComments emits, at the current indent, every comment that appeared
// before the given source line.
func (f *formatter) flushComments(before int64) {
	for f.next < len(f.comments) && f.comments[f.next].Location.Line < before {
		f.writeLine(strings.TrimSpace(f.comments[f.next].Text))
		f.next++
	}
}

func (f *formatter) flushRemaining() {
	for ; f.next < len(f.comments); f.next++ {
		f.writeLine(strings.TrimSpace(f.comments[f.next].Text))
	}
}

// header writes a node's tag line (if any) and keyword line, flushing the
// comments attached above each.
func (f *formatter) header(tags []*messages.Tag, loc *messages.Location, keyword, name string) {
	if len(tags) > 0 {
		f.flushComments(tags[0].Location.Line)
		f.writeLine(tagLine(tags))
	}
	if loc != nil {
		f.flushComments(loc.Line)
	}
	f.writeLine(head(keyword, name))
}

func (f *formatter) feature(feat *messages.Feature) {
	if feat.Language != "" && feat.Language != "en" {
		f.writeLine("# language: " + feat.Language)
	}
	f.header(feat.Tags, feat.Location, feat.Keyword, feat.Name)
	f.description(feat.Description)

	f.indent++
	for _, child := range feat.Children {
		f.blankLine()
		switch {
		case child.Background != nil:
			f.background(child.Background)
		case child.Rule != nil:
			f.rule(child.Rule)
		case child.Scenario != nil:
			f.scenario(child.Scenario)
		}
	}
	f.indent--
}

func (f *formatter) rule(r *messages.Rule) {
	f.header(r.Tags, r.Location, r.Keyword, r.Name)
	f.description(r.Description)

	f.indent++
	for _, child := range r.Children {
		f.blankLine()
		switch {
		case child.Background != nil:
			f.background(child.Background)
		case child.Scenario != nil:
			f.scenario(child.Scenario)
		}
	}
	f.indent--
}

func (f *formatter) background(bg *messages.Background) {
	f.header(nil, bg.Location, bg.Keyword, bg.Name)
	f.description(bg.Description)

	f.indent++
	for _, s := range bg.Steps {
		f.step(s)
	}
	f.indent--
}

func (f *formatter) scenario(sc *messages.Scenario) {
	f.header(sc.Tags, sc.Location, sc.Keyword, sc.Name)
	f.description(sc.Description)

	f.indent++
	for _, s := range sc.Steps {
		f.step(s)
	}
	for _, ex := range sc.Examples {
		f.blankLine()
		f.examples(ex)
	}
	f.indent--
}

func (f *formatter) step(s *messages.Step) {
	f.flushComments(s.Location.Line)
	f.writeLine(strings.TrimRight(strings.TrimSpace(s.Keyword)+" "+s.Text, " "))

	if s.DocString != nil {
		f.docString(s.DocString)
	}
	if s.DataTable != nil {
		f.indent++
		f.table(s.DataTable.Rows)
		f.indent--
	}
}

func (f *formatter) examples(ex *messages.Examples) {
	f.header(ex.Tags, ex.Location, ex.Keyword, ex.Name)
	f.description(ex.Description)

	f.indent++
	rows := make([]*messages.TableRow, 0, len(ex.TableBody)+1)
	if ex.TableHeader != nil {
		rows = append(rows, ex.TableHeader)
	}
	rows = append(rows, ex.TableBody...)
	f.table(rows)
	f.indent--
}

// description re-emits a free-form description one level below its header,
// trimming each line. Interior blank lines are kept.
func (f *formatter) description(desc string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return
	}

	f.indent++
	for _, line := range strings.Split(desc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			f.blankLine()
		} else {
			f.writeLine(line)
		}
	}
	f.indent--
}

// docString re-emits a doc string with its original delimiter, indented to
// the step body. Content lines are written verbatim apart from re-escaping
// the delimiter.
func (f *formatter) docString(d *messages.DocString) {
	delim := d.Delimiter
	if delim == "" {
		delim = `"""`
	}

	f.indent++
	f.writeLine(delim + d.MediaType)
	content := escapeDocString(d.Content, delim)
	for _, line := range strings.Split(content, "\n") {
		if line == "" {
			f.blankLine()
		} else {
			f.writeLine(line)
		}
	}
	f.writeLine(delim)
	f.indent--
}

// table writes rows with pipes aligned on the widest cell per column.
// Widths are measured in runes over the escaped cell text.
func (f *formatter) table(rows []*messages.TableRow) {
	if len(rows) == 0 {
		return
	}

	var widths []int
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row.Cells))
		for j, c := range row.Cells {
			v := escapeCell(c.Value)
			cells[i][j] = v
			for len(widths) <= j {
				widths = append(widths, 0)
			}
			if n := utf8.RuneCountInString(v); n > widths[j] {
				widths[j] = n
			}
		}
	}

	for i, row := range rows {
		f.flushComments(row.Location.Line)
		f.writeIndent()
		f.write("|")
		for j, v := range cells[i] {
			f.write(" ")
			f.write(v)
			f.write(strings.Repeat(" ", widths[j]-utf8.RuneCountInString(v)))
			f.write(" |")
		}
		f.write("\n")
	}
}

func head(keyword, name string) string {
	return strings.TrimRight(keyword+": "+name, " ")
}

func tagLine(tags []*messages.Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}

	return strings.Join(names, " ")
}

// escapeCell reverses the parser's cell unescaping so values containing
// pipes, backslashes, or newlines round-trip.
func escapeCell(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, "|", `\|`)

	return v
}

// escapeDocString escapes occurrences of the delimiter inside doc string
// content. The delimiter is three identical characters; each is escaped
// individually, matching the parser's unescape.
func escapeDocString(content, delim string) string {
	if !strings.Contains(content, delim) {
		return content
	}
	var esc strings.Builder
	for _, r := range delim {
		esc.WriteByte('\\')
		esc.WriteRune(r)
	}

	return strings.ReplaceAll(content, delim, esc.String())
}
