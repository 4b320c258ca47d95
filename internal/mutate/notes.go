package mutate

import "strings"

// SlideIDKey is the reserved notes key carrying a slide's durable identity.
const SlideIDKey = "slide_id"

// ParseSlideID extracts the "slide_id: <id>" line from a slide's notes text.
// Notes are treated as a set of small "key: value" lines; parsers must
// tolerate arbitrary other content around the marker. Returns "", false if
// no slide_id line is present.
func ParseSlideID(notes string) (string, bool) {
	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) != SlideIDKey {
			continue
		}
		id := strings.TrimSpace(value)
		if id == "" {
			continue
		}
		return id, true
	}
	return "", false
}

// SetSlideID returns notes with its "slide_id:" line set to id, appending
// the marker if absent and preserving any other notes content.
func SetSlideID(notes, id string) string {
	lines := strings.Split(notes, "\n")
	marker := SlideIDKey + ": " + id
	for i, line := range lines {
		key, _, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && strings.TrimSpace(key) == SlideIDKey {
			lines[i] = marker
			return strings.Join(lines, "\n")
		}
	}
	if notes == "" {
		return marker
	}
	return strings.TrimRight(notes, "\n") + "\n" + marker
}
