package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DisplayTimeLayout is how task times are shown.
const DisplayTimeLayout = "2006-01-02 15:04:05"

var sciZone = regexp.MustCompile(`(?i)([1-4]区(?:Top)?)`)

var inputTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	DisplayTimeLayout,
	"2006-01-02",
}

func convertPaper(p rawPaper) Paper {
	link := p.AbstractURL
	if link == "" {
		link = p.PDFURL
	}
	out := Paper{
		ID:        strconv.FormatInt(p.ID, 10),
		Title:     p.Title,
		Abstract:  p.PaperAbstract,
		Authors:   splitList(p.Authors),
		Year:      leadingInt(p.PublishedDate),
		VenueType: VenueConference,
		Keywords:  splitList(p.Keywords),
		Summary:   p.AIAbstract,
		Citations: p.Citations,
		DOI:       p.DOI,
		Link:      link,
		PDFURL:    p.PDFURL,
	}
	if v := p.VenueInfo; v != nil {
		out.Journal = v.StandardName
		if v.Type == 0 {
			out.VenueType = VenueJournal
		}
		out.CCFLevel = v.CCFRank
		out.SCILevel = v.SCIRank
		out.CORELevel = v.CORERank
		out.SCIUpFull = v.SCIUp
		out.JCRLevel = extractSCIZone(v.SCIUp)
		if v.SCIIF > 0 {
			out.ImpactFactor = v.SCIIF
		}
	}
	return out
}

// extractSCIZone pulls the zone ("1区", "2区Top") out of a full CAS
// partition label.
func extractSCIZone(sciUp string) string {
	m := sciZone.FindStringSubmatch(sciUp)
	if m == nil {
		return ""
	}
	return m[1]
}

func convertTask(t rawTask) Task {
	status, progress := convertTaskState(t.TaskState)
	return Task{
		ID:           t.ID,
		TaskName:     fmt.Sprintf("Task %03d", t.ID),
		SearchTerm:   t.SearchWord,
		Keywords:     splitList(t.Keywords),
		Date:         formatDateTime(t.SearchTime),
		Progress:     progress,
		Status:       status,
		ErrorMessage: t.ErrorMessage,
	}
}

// convertTaskState maps a backend state to a display status and progress
// label. Unknown states read as pending.
func convertTaskState(state string) (status, progress string) {
	switch state {
	case StateRunning:
		return StatusSearching, "Searching"
	case StateCompleted:
		return StatusSuccess, "Completed"
	case StateFailed:
		return StatusFailed, "Failed"
	case StateCancelled:
		return StatusCancelled, "Cancelled"
	default:
		return StatusSearching, "Pending"
	}
}

// formatDateTime renders s in DisplayTimeLayout, local time. Unparseable
// input is returned unchanged.
func formatDateTime(s string) string {
	for _, layout := range inputTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.In(time.Local).Format(DisplayTimeLayout)
		}
	}
	return s
}

// splitList splits a comma-separated backend field, dropping blanks.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// leadingInt parses the integer prefix of s, e.g. the year of "2024-05-01".
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
