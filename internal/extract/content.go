package extract

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// textFromContent interprets the text-showing operators of a page content stream
// (Tj, TJ, ' and ") and returns the strings they paint, in stream order.
// Positioning operators become spaces or line breaks; glyph placement is not modelled.
func textFromContent(data []byte) string {
	var sb strings.Builder
	var operands []string
	inArray := false

	emit := func() {
		for _, s := range operands {
			sb.WriteString(s)
		}
	}
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	space := func() {
		if sb.Len() == 0 {
			return
		}
		s := sb.String()
		if !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			sb.WriteByte(' ')
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteral(data, i)
			operands = append(operands, s)
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHexString(data, i)
			operands = append(operands, s)
			i = next
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			// name operand
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
		case isPDFDelim(c):
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			tok := string(data[start:i])
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				// large negative kerning inside TJ is a word gap
				if inArray && f <= -200 {
					operands = append(operands, " ")
				}
				continue
			}
			switch tok {
			case "Tj", "TJ":
				emit()
			case "'", `"`:
				newline()
				emit()
			case "Td", "TD", "Tm":
				space()
			case "T*", "ET":
				newline()
			}
			operands = operands[:0]
		}
	}
	return strings.TrimSpace(sb.String())
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes the string literal starting at data[i] == '('.
// It returns the decoded text and the index just past the closing paren.
func readLiteral(data []byte, i int) (string, int) {
	var raw []byte
	depth := 1
	i++
	for i < len(data) && depth > 0 {
		c := data[i]
		switch c {
		case '\\':
			i++
			if i >= len(data) {
				break
			}
			switch e := data[i]; e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					raw = append(raw, byte(val))
				} else {
					raw = append(raw, e)
				}
			}
		case '(':
			depth++
			raw = append(raw, c)
		case ')':
			depth--
			if depth > 0 {
				raw = append(raw, c)
			}
		default:
			raw = append(raw, c)
		}
		i++
	}
	return decodePDFText(raw), i
}

// readHexString decodes the hex string starting at data[i] == '<'.
func readHexString(data []byte, i int) (string, int) {
	i++
	var digits []byte
	for i < len(data) && data[i] != '>' {
		if isHexDigit(data[i]) {
			digits = append(digits, data[i])
		}
		i++
	}
	if i < len(data) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, 0, len(digits)/2)
	for k := 0; k < len(digits); k += 2 {
		v, _ := strconv.ParseUint(string(digits[k:k+2]), 16, 8)
		raw = append(raw, byte(v))
	}
	return decodePDFText(raw), i
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// decodePDFText handles UTF-16BE strings with a byte order mark and treats
// everything else as a single-byte Latin encoding.
func decodePDFText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for k := 2; k+1 < len(raw); k += 2 {
			units = append(units, uint16(raw[k])<<8|uint16(raw[k+1]))
		}
		return string(utf16.Decode(units))
	}
	var sb strings.Builder
	for _, b := range raw {
		if b < 0x20 && b != '\n' && b != '\t' {
			continue
		}
		sb.WriteRune(rune(b))
	}
	return sb.String()
}
