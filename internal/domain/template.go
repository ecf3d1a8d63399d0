package domain

import "strings"

// subjectPrefix marks the optional subject line at the top of a template file.
const subjectPrefix = "SUBJECT:"

// DefaultSubject is used for template files without a SUBJECT: line.
const DefaultSubject = "Notification"

// Template is a named subject/body pair with {Key} placeholders.
type Template struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ParseTemplate decodes a template file. When the first line starts with
// "SUBJECT:" the remainder of that line is the subject and the rest of the
// file is the body; otherwise the whole file is the body.
func ParseTemplate(name, content string) Template {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	t := Template{Name: name, Subject: DefaultSubject, Body: content}
	first, rest, _ := strings.Cut(content, "\n")
	if strings.HasPrefix(first, subjectPrefix) {
		t.Subject = strings.TrimSpace(strings.TrimPrefix(first, subjectPrefix))
		t.Body = rest
	}
	return t
}

// FormatTemplate is the inverse of ParseTemplate.
func FormatTemplate(t Template) string {
	return subjectPrefix + " " + t.Subject + "\n" + t.Body
}
