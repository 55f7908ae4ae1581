package device

import "strings"

// lastLine returns the final line of text with trailing whitespace and
// carriage returns removed.
func lastLine(text string) string {
	text = strings.TrimRight(text, " \t\r\n")
	if i := strings.LastIndexAny(text, "\r\n"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

// detectPrompt reports the prompt at the end of text, if any. A prompt is a
// single word ending in '>' (user mode) or '#' (privileged mode).
func detectPrompt(text string) (prompt string, ok bool) {
	line := lastLine(text)
	if len(line) < 2 || strings.ContainsAny(line, " \t") {
		return "", false
	}
	switch line[len(line)-1] {
	case '>', '#':
		return line, true
	}
	return "", false
}

// basePrompt strips the mode terminator from a prompt.
func basePrompt(prompt string) string {
	return prompt[:len(prompt)-1]
}

// endsWithPrompt reports whether text ends with base followed by a mode
// terminator.
func endsWithPrompt(text, base string) bool {
	line := lastLine(text)
	return line == base+">" || line == base+"#"
}

// isPasswordPrompt reports whether the device is waiting for a password.
func isPasswordPrompt(text string) bool {
	return strings.HasSuffix(strings.ToLower(lastLine(text)), "password:")
}

// commandComplete reports whether buf holds the echo of cmd followed by the
// device prompt.
func commandComplete(buf, cmd, base string) bool {
	i := strings.Index(buf, cmd)
	if i < 0 {
		return false
	}
	return endsWithPrompt(buf[i+len(cmd):], base)
}

// cleanOutput extracts the command output from a raw buffer holding the echo
// of cmd, the output and the trailing prompt.
func cleanOutput(buf, cmd string) string {
	if i := strings.Index(buf, cmd); i >= 0 {
		buf = buf[i+len(cmd):]
	}
	buf = strings.ReplaceAll(buf, "\r\n", "\n")
	buf = strings.ReplaceAll(buf, "\r", "")
	buf = strings.TrimRight(buf, " \t\n")
	if i := strings.LastIndex(buf, "\n"); i >= 0 {
		buf = buf[:i]
	} else {
		// Only the prompt followed the echo.
		buf = ""
	}
	return strings.TrimSpace(buf)
}

// cliError returns the first CLI error line in output, if any.
func cliError(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "% ") {
			continue
		}
		switch {
		case strings.Contains(line, "Invalid input"),
			strings.Contains(line, "Incomplete command"),
			strings.Contains(line, "Ambiguous command"),
			strings.Contains(line, "Unknown command"):
			return line, true
		}
	}
	return "", false
}
