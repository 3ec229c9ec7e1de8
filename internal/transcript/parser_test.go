package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declog/declog/internal/models"
)

func TestParseBracketHeader(t *testing.T) {
	msgs := Parse("[12/31/21, 11:59 PM] Alice: Let's ship it")
	require.Len(t, msgs, 1)

	assert.Equal(t, "Alice", msgs[0].Sender)
	assert.Equal(t, "Let's ship it", msgs[0].Body)
	assert.Equal(t, time.Date(2021, 12, 31, 23, 59, 0, 0, time.UTC), msgs[0].Timestamp)
	assert.NotEmpty(t, msgs[0].Fingerprint)
}

func TestParseDashHeader24Hour(t *testing.T) {
	msgs := Parse("31/12/2021, 23:59 - Bob: done")
	require.Len(t, msgs, 1)

	assert.Equal(t, "Bob", msgs[0].Sender)
	assert.Equal(t, time.Date(2021, 12, 31, 23, 59, 0, 0, time.UTC), msgs[0].Timestamp)
}

func TestParseDateOrderDisambiguation(t *testing.T) {
	// First component over 12 can only be a day.
	dayFirst := Parse("25/03/2024, 10:00 - A: hi")
	require.Len(t, dayFirst, 1)
	assert.Equal(t, time.March, dayFirst[0].Timestamp.Month())
	assert.Equal(t, 25, dayFirst[0].Timestamp.Day())

	// Ambiguous dates default to month-first.
	monthFirst := Parse("03/04/2024, 10:00 - A: hi")
	require.Len(t, monthFirst, 1)
	assert.Equal(t, time.March, monthFirst[0].Timestamp.Month())
	assert.Equal(t, 4, monthFirst[0].Timestamp.Day())
}

func TestParseTwelveHourClock(t *testing.T) {
	am := Parse("[1/2/24, 12:15 AM] A: midnight-ish")
	require.Len(t, am, 1)
	assert.Equal(t, 0, am[0].Timestamp.Hour())

	pm := Parse("[1/2/24, 12:15 PM] A: noon-ish")
	require.Len(t, pm, 1)
	assert.Equal(t, 12, pm[0].Timestamp.Hour())
}

func TestParseMultilineAndLeadingGarbage(t *testing.T) {
	raw := "exported by someapp\n" +
		"[1/2/24, 9:00 AM] Alice: first line\nsecond line   \nthird\n" +
		"[1/2/24, 9:01 AM] Bob: reply"
	msgs := Parse(raw)
	require.Len(t, msgs, 2)

	assert.Equal(t, "first line\nsecond line\nthird", msgs[0].Body)
	assert.Equal(t, "reply", msgs[1].Body)
}

func TestParseMissingSenderUsesSystemSentinel(t *testing.T) {
	msgs := Parse("[1/2/24, 9:00 AM] Alice joined the group")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SystemSender, msgs[0].Sender)
	assert.Equal(t, "Alice joined the group", msgs[0].Body)
}

func TestParseNotATranscript(t *testing.T) {
	msgs := Parse("just some prose\nwith no headers at all\n")
	assert.Empty(t, msgs)
}

func TestFingerprintDeterminism(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	fp1 := Fingerprint(ts, "Alice", "hello")
	fp2 := Fingerprint(ts, "Alice", "hello")
	assert.Equal(t, fp1, fp2)

	assert.NotEqual(t, fp1, Fingerprint(ts.Add(time.Minute), "Alice", "hello"))
	assert.NotEqual(t, fp1, Fingerprint(ts, "Bob", "hello"))
	assert.NotEqual(t, fp1, Fingerprint(ts, "Alice", "hello!"))
}

func TestFingerprintStableAcrossReparse(t *testing.T) {
	raw := "[1/2/24, 9:00 AM] Alice: we decided to use Postgres"
	first := Parse(raw)
	second := Parse(raw)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Fingerprint, second[0].Fingerprint)
}

func TestCanonicalTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 17, 30, 5, 0, time.FixedZone("CEST", 2*60*60))
	assert.Equal(t, "2024-05-01T15:30:05", CanonicalTimestamp(ts))
}

func TestNormalizeSender(t *testing.T) {
	assert.Equal(t, "Alice B", NormalizeSender("  Alice   B "))
	assert.Equal(t, models.SystemSender, NormalizeSender("   "))
}
