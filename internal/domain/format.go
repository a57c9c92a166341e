package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// Scorm12Time formats d as CMITimespan HHHH:MM:SS.SS.
func Scorm12Time(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	frac := cs % 100
	return fmt.Sprintf("%04d:%02d:%02d.%02d", h, m, s, frac)
}

// ISO8601Duration formats d as PT#H#M#S, used by SCORM 2004 and xAPI.
func ISO8601Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	h := cs / 360000
	m := (cs / 6000) % 60
	sec := float64(cs%6000) / 100

	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	if sec > 0 || (h == 0 && m == 0) {
		b.WriteString(trimFloat(sec))
		b.WriteString("S")
	}
	return b.String()
}

// AICCTime formats d as HH:MM:SS.
func AICCTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
