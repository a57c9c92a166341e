package codec

import (
	"bytes"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// freeTextSections hold AICC free-form blocks rather than key=value pairs.
var freeTextSections = []string{"core_lesson", "comments", "core_vendor"}

var hacpLoadOptions = ini.LoadOptions{
	Insensitive:             true,
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	SkipUnrecognizableLines: true,
	KeyValueDelimiters:      "=",
	UnparseableSections:     freeTextSections,
}

func init() {
	// HACP documents are CRLF terminated and written without alignment.
	ini.LineBreak = "\r\n"
	ini.PrettyFormat = false
}

// HACPResponse is a parsed HACP response body.
type HACPResponse struct {
	ErrorCode int
	ErrorText string
	// HasError is false when the body carried no error field at all.
	HasError bool
	Version  string
	// Values holds every pair with a lower-cased key. Keys inside a
	// [section] are stored as "section.key" and, when not already taken,
	// under the bare key as well. Free-text sections are stored whole under
	// their name.
	Values map[string]string
}

// OK reports whether the response explicitly signalled success. A missing
// error field is a failure.
func (r *HACPResponse) OK() bool {
	return r.HasError && r.ErrorCode == 0
}

// Get returns the value of key, which may be section-qualified.
func (r *HACPResponse) Get(key string) string {
	return r.Values[strings.ToLower(key)]
}

// ParseHACPResponse parses key=value pairs optionally grouped under
// [section] headers. It never fails; malformed lines are skipped.
func ParseHACPResponse(body string) *HACPResponse {
	resp := &HACPResponse{ErrorCode: -1, Values: map[string]string{}}

	f, err := ini.LoadSources(hacpLoadOptions, []byte(normalizeHACP(body)))
	if err != nil {
		return resp
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if strings.EqualFold(name, ini.DefaultSection) {
			for _, k := range sec.Keys() {
				resp.Values[k.Name()] = k.Value()
			}
			continue
		}
		if body := sec.Body(); body != "" {
			resp.Values[name] = body
			continue
		}
		for _, k := range sec.Keys() {
			resp.Values[name+"."+k.Name()] = k.Value()
			if _, taken := resp.Values[k.Name()]; !taken {
				resp.Values[k.Name()] = k.Value()
			}
		}
	}

	if raw, ok := resp.Values["error"]; ok {
		if code, err := strconv.Atoi(raw); err == nil {
			resp.ErrorCode = code
			resp.HasError = true
		}
	}
	resp.ErrorText = resp.Values["error_text"]
	resp.Version = resp.Values["version"]
	return resp
}

// normalizeHACP lower-cases section headers and moves the header that
// GetParam inlines as aicc_data=[Core] onto its own line.
func normalizeHACP(body string) string {
	lines := strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' })
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if name, ok := sectionHeader(line); ok {
			lines[i] = "[" + name + "]"
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "aicc_data") {
			if name, ok := sectionHeader(strings.TrimSpace(value)); ok {
				lines[i] = "[" + name + "]"
				continue
			}
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func sectionHeader(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return strings.ToLower(strings.TrimSpace(s[1 : len(s)-1])), true
	}
	return "", false
}

// INISection is one [section] of an aicc_data document, in write order.
type INISection struct {
	Name  string
	Pairs [][2]string
}

// Set appends key=value to the section.
func (s *INISection) Set(key, value string) *INISection {
	s.Pairs = append(s.Pairs, [2]string{key, value})
	return s
}

// EncodeINI renders sections with CRLF line endings as HACP requires.
func EncodeINI(sections ...*INISection) (string, error) {
	f := ini.Empty()
	for _, s := range sections {
		sec, err := f.NewSection(s.Name)
		if err != nil {
			return "", err
		}
		for _, kv := range s.Pairs {
			if _, err := sec.NewKey(kv[0], kv[1]); err != nil {
				return "", err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\r\n") + "\r\n", nil
}
