// Package transcript turns raw chat exports into ordered, fingerprinted
// messages. Parsing is line oriented: a line that matches a known header
// shape (timestamp, optional sender, body) starts a new message, anything
// else continues the previous one. Fingerprints are pure functions of the
// normalized fields, which is what makes re-imports idempotent downstream.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/declog/declog/internal/models"
)

// headerRe matches the common export header shapes:
//
//	[12/31/21, 11:59 PM] Alice: body
//	31/12/2021, 23:59 - Alice: body
//	12.31.21 11:59 PM Alice: body
//
// Groups: day-or-month, month-or-day, year, hour, minute, second, am/pm,
// remainder (optional "Sender: " prefix plus body).
var headerRe = regexp.MustCompile(
	`^\[?(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})[,]?\s+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp][Mm])?\]?\s*(?:-\s*)?(.*)$`)

// senderRe splits an optional "Sender: " prefix off the body. Senders do
// not contain colons; anything after the first ": " is body.
var senderRe = regexp.MustCompile(`^([^:]{1,80}?):\s(.*)$`)

// canonicalTimeLayout is the timezone-independent form hashed into the
// fingerprint and stored as the message timestamp.
const canonicalTimeLayout = "2006-01-02T15:04:05"

// Parse splits raw transcript text into normalized messages in source
// order. Lines before the first header are discarded. If no header ever
// matches, Parse returns an empty slice: not-a-transcript is a valid
// input, not an error.
func Parse(raw string) []models.Message {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var msgs []models.Message
	var open *pendingMessage

	for _, line := range lines {
		ts, rest, ok := matchHeader(line)
		if !ok {
			if open != nil {
				open.bodyLines = append(open.bodyLines, strings.TrimRight(line, " \t"))
			}
			continue
		}
		if open != nil {
			msgs = append(msgs, open.finish())
		}
		sender, body := splitSender(rest)
		open = &pendingMessage{
			timestamp: ts,
			sender:    sender,
			bodyLines: []string{strings.TrimRight(body, " \t")},
		}
	}
	if open != nil {
		msgs = append(msgs, open.finish())
	}
	return msgs
}

type pendingMessage struct {
	timestamp time.Time
	sender    string
	bodyLines []string
}

func (p *pendingMessage) finish() models.Message {
	body := strings.TrimSpace(strings.Join(p.bodyLines, "\n"))
	return models.Message{
		Fingerprint: Fingerprint(p.timestamp, p.sender, body),
		Sender:      p.sender,
		Timestamp:   p.timestamp,
		Body:        body,
	}
}

// Fingerprint computes the deterministic content hash identifying a
// message: hex SHA-256 over canonical timestamp, normalized sender and
// normalized body, pipe separated.
func Fingerprint(ts time.Time, sender, body string) string {
	sum := sha256.Sum256([]byte(CanonicalTimestamp(ts) + "|" + NormalizeSender(sender) + "|" + body))
	return hex.EncodeToString(sum[:])
}

// NormalizeSender trims and collapses internal whitespace; empty senders
// become the system sentinel.
func NormalizeSender(sender string) string {
	fields := strings.Fields(sender)
	if len(fields) == 0 {
		return models.SystemSender
	}
	return strings.Join(fields, " ")
}

func matchHeader(line string) (time.Time, string, bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, "", false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}

	// Month-first by default; a leading component over 12 can only be a day.
	month, day := a, b
	if a > 12 {
		day, month = a, b
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, "", false
	}
	if year < 100 {
		year += 2000
	}

	if ampm := strings.ToUpper(m[7]); ampm != "" {
		if hour > 12 {
			return time.Time{}, "", false
		}
		if hour == 12 {
			hour = 0
		}
		if ampm == "PM" {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, "", false
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return ts, m[8], true
}

func splitSender(rest string) (sender, body string) {
	if m := senderRe.FindStringSubmatch(rest); m != nil {
		return NormalizeSender(m[1]), m[2]
	}
	return models.SystemSender, rest
}

// CanonicalTimestamp renders ts in the form hashed into fingerprints.
func CanonicalTimestamp(ts time.Time) string {
	return ts.UTC().Format(canonicalTimeLayout)
}
