package page

import (
	"bufio"
	"io"
	"strings"
)

// LineType 对页面中的单行进行分类。
type LineType int

const (
	LineEmpty LineType = iota
	LineTitle
	LineDescription
	LineExampleText
	LineExampleCode
	LineOther
)

func (t LineType) String() string {
	switch t {
	case LineEmpty:
		return "empty"
	case LineTitle:
		return "title"
	case LineDescription:
		return "description"
	case LineExampleText:
		return "example_text"
	case LineExampleCode:
		return "example_code"
	default:
		return "other"
	}
}

// Line 是分类后的一行，Text 已去掉标记符与首尾空白。
type Line struct {
	Type LineType
	Text string
}

// ParseLine 按行首标记识别行类型；代码行必须被一对反引号包裹。
func ParseLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Line{Type: LineEmpty}
	case strings.HasPrefix(trimmed, "#"):
		return Line{Type: LineTitle, Text: strings.TrimSpace(trimmed[1:])}
	case strings.HasPrefix(trimmed, ">"):
		return Line{Type: LineDescription, Text: strings.TrimSpace(trimmed[1:])}
	case strings.HasPrefix(trimmed, "-"):
		return Line{Type: LineExampleText, Text: strings.TrimSpace(trimmed[1:])}
	case len(trimmed) >= 2 && strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`"):
		return Line{Type: LineExampleCode, Text: trimmed[1 : len(trimmed)-1]}
	default:
		return Line{Type: LineOther, Text: trimmed}
	}
}

// Tokenize 逐行读取页面内容并返回分类结果。
func Tokenize(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []Line
	for scanner.Scan() {
		lines = append(lines, ParseLine(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Title 返回第一行标题文本，不存在时返回空字符串。
func Title(lines []Line) string {
	for _, line := range lines {
		if line.Type == LineTitle {
			return line.Text
		}
	}
	return ""
}
