// Package render prints tokenized pages to a terminal. Titles and
// unrecognized lines are skipped; descriptions, example texts and example
// commands are indented the way the upstream clients lay them out. Styling
// goes through lipgloss and is switched off entirely for plain output.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/pagecache/tldr/internal/config"
	"github.com/pagecache/tldr/internal/page"
)

// Options 控制渲染行为。
type Options struct {
	Color  bool
	Logger *logrus.Logger
}

var placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

type styles struct {
	description lipgloss.Style
	exampleText lipgloss.Style
	code        lipgloss.Style
	placeholder lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.ANSI256)
	return styles{
		description: r.NewStyle().Italic(true),
		exampleText: r.NewStyle().Foreground(lipgloss.Color("2")),
		code:        r.NewStyle().Foreground(lipgloss.Color("6")),
		placeholder: r.NewStyle().Foreground(lipgloss.Color("4")).Underline(true),
	}
}

// Render 按行类型输出页面；Color 为 false 时不输出任何转义序列。
func Render(w io.Writer, lines []page.Line, opts Options) error {
	var st *styles
	if opts.Color {
		s := newStyles(w)
		st = &s
	}

	for _, line := range lines {
		var out string
		switch line.Type {
		case page.LineEmpty:
			out = ""
		case page.LineTitle:
			debugf(opts.Logger, line, "render_skip_title")
			continue
		case page.LineDescription:
			out = "  " + styled(st, func(s *styles) lipgloss.Style { return s.description }, line.Text)
		case page.LineExampleText:
			out = "  - " + styled(st, func(s *styles) lipgloss.Style { return s.exampleText }, line.Text)
		case page.LineExampleCode:
			out = "    " + renderCode(st, line.Text)
		default:
			debugf(opts.Logger, line, "render_skip_unknown")
			continue
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			return err
		}
	}
	return nil
}

// Page 对原始页面内容分词后渲染。
func Page(w io.Writer, content string, opts Options) error {
	lines, err := page.Tokenize(strings.NewReader(content))
	if err != nil {
		return err
	}
	return Render(w, lines, opts)
}

func styled(st *styles, pick func(*styles) lipgloss.Style, text string) string {
	if st == nil {
		return text
	}
	return pick(st).Render(text)
}

// renderCode 高亮 {{placeholder}}；无颜色时原样保留花括号。
func renderCode(st *styles, text string) string {
	if st == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			b.WriteString(st.code.Render(text[last:loc[0]]))
		}
		b.WriteString(st.placeholder.Render(text[loc[2]:loc[3]]))
		last = loc[1]
	}
	if last < len(text) {
		b.WriteString(st.code.Render(text[last:]))
	}
	return b.String()
}

func debugf(logger *logrus.Logger, line page.Line, msg string) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"action":    "render",
		"line_type": line.Type.String(),
		"text":      line.Text,
	}).Debug(msg)
}

// ColorEnabled 根据配置模式判断是否着色：auto 时仅在终端且未设置 NO_COLOR 时着色。
func ColorEnabled(mode string, out io.Writer, getenv func(string) string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		return false
	}
	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
