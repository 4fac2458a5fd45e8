package recorder

import (
	"strconv"
	"strings"
	"time"
)

// FormatDate renders t with a Unicode date pattern such as "yyyyMMdd-HHmmss".
//
// Letters repeat to select width; text inside single quotes is literal and
// a doubled quote is a literal quote. Unknown letters are copied through.
func FormatDate(t time.Time, pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						b.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				b.WriteRune(runes[j])
				j++
			}
			i = j + 1
			continue
		}

		if !isPatternLetter(r) {
			b.WriteRune(r)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == r {
			n++
		}
		b.WriteString(formatField(t, r, n))
		i += n
	}

	return b.String()
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func formatField(t time.Time, letter rune, n int) string {
	switch letter {
	case 'y', 'u':
		if n == 2 {
			return pad(t.Year()%100, 2)
		}
		return pad(t.Year(), n)
	case 'M', 'L':
		switch {
		case n >= 5:
			return t.Month().String()[:1]
		case n == 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		default:
			return pad(int(t.Month()), n)
		}
	case 'd':
		return pad(t.Day(), n)
	case 'D':
		return pad(t.YearDay(), n)
	case 'E':
		switch {
		case n >= 5:
			return t.Weekday().String()[:1]
		case n == 4:
			return t.Weekday().String()
		default:
			return t.Weekday().String()[:3]
		}
	case 'a':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'H':
		return pad(t.Hour(), n)
	case 'k':
		h := t.Hour()
		if h == 0 {
			h = 24
		}
		return pad(h, n)
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return pad(h, n)
	case 'K':
		return pad(t.Hour()%12, n)
	case 'm':
		return pad(t.Minute(), n)
	case 's':
		return pad(t.Second(), n)
	case 'S':
		frac := pad(t.Nanosecond(), 9)
		if n <= 9 {
			return frac[:n]
		}
		return frac + strings.Repeat("0", n-9)
	case 'z':
		name, _ := t.Zone()
		return name
	case 'Z':
		switch {
		case n == 4:
			return "GMT" + t.Format("-07:00")
		case n >= 5:
			return t.Format("Z07:00")
		default:
			return t.Format("-0700")
		}
	default:
		return strings.Repeat(string(letter), n)
	}
}

func pad(v int, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
