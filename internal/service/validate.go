package service

import "time"

// Reading-speed bounds in words per minute. Deltas outside the hard bounds
// are treated as fraudulent; deltas outside the soft bounds are logged but
// accepted.
const (
	hardMinWPM = 50
	hardMaxWPM = 1500
	softMinWPM = 100
	softMaxWPM = 1000

	// minValidationElapsed is the shortest interval over which a reading
	// rate can be estimated reliably
	minValidationElapsed = 5 * time.Second
)

// SpeedVerdict classifies a flushed reading-time delta
type SpeedVerdict int

const (
	SpeedOK SpeedVerdict = iota
	SpeedSuspicious
	SpeedRejected
)

// String returns a human-readable representation of the verdict
func (v SpeedVerdict) String() string {
	switch v {
	case SpeedOK:
		return "ok"
	case SpeedSuspicious:
		return "suspicious"
	case SpeedRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ValidateReadingSpeed judges whether elapsed reading time is plausible for
// the given word count. Validation is skipped (SpeedOK) when the elapsed
// time is too short to estimate a rate, or when no word count is known.
func ValidateReadingSpeed(elapsed time.Duration, wordCount int) SpeedVerdict {
	if elapsed < minValidationElapsed || wordCount <= 0 {
		return SpeedOK
	}

	wpm := float64(wordCount) / elapsed.Minutes()
	if wpm < hardMinWPM || wpm > hardMaxWPM {
		return SpeedRejected
	}
	if wpm < softMinWPM || wpm > softMaxWPM {
		return SpeedSuspicious
	}
	return SpeedOK
}
