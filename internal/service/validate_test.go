package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateReadingSpeed(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   time.Duration
		wordCount int
		want      SpeedVerdict
	}{
		{"normal pace", time.Minute, 300, SpeedOK},
		{"slow but plausible", time.Minute, 80, SpeedSuspicious},
		{"fast but plausible", time.Minute, 1200, SpeedSuspicious},
		{"implausibly fast", time.Minute, 2000, SpeedRejected},
		{"implausibly slow", time.Minute, 30, SpeedRejected},
		{"hard lower bound is inclusive", time.Minute, 50, SpeedSuspicious},
		{"hard upper bound is inclusive", time.Minute, 1500, SpeedSuspicious},
		{"too short to judge", 3 * time.Second, 5000, SpeedOK},
		{"unknown word count", time.Minute, 0, SpeedOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateReadingSpeed(tt.elapsed, tt.wordCount))
		})
	}
}

func TestSpeedVerdictString(t *testing.T) {
	assert.Equal(t, "ok", SpeedOK.String())
	assert.Equal(t, "suspicious", SpeedSuspicious.String())
	assert.Equal(t, "rejected", SpeedRejected.String())
}
