package scanner

func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func IsAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// AllDigits reports whether s is non-empty and made only of ASCII digits.
func AllDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsDigit(s[i]) {
			return false
		}
	}
	return true
}

// AllAlpha reports whether s is non-empty and made only of ASCII letters.
func AllAlpha(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsAlpha(s[i]) {
			return false
		}
	}
	return true
}

// AllAlnum reports whether s is non-empty and made only of ASCII letters or digits.
func AllAlnum(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsAlpha(s[i]) && !IsDigit(s[i]) {
			return false
		}
	}
	return true
}

// LeftPad pads s with '0' on the left up to width. Longer inputs are returned unchanged.
func LeftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	buf := make([]byte, width)
	pad := width - len(s)
	for i := 0; i < pad; i++ {
		buf[i] = '0'
	}
	copy(buf[pad:], s)
	return string(buf)
}

// RemoveSpaces drops every ASCII space from s.
func RemoveSpaces(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			n++
		}
	}
	if n == len(s) {
		return s
	}
	buf := make([]byte, 0, n)
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			buf = append(buf, s[i])
		}
	}
	return string(buf)
}
