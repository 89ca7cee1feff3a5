package config

import "time"

const (
	// Accounts
	MinPasswordLength = 5
	MaxNicknameLength = 32

	// Ban
	BanLevel1Duration = 30 * time.Minute
	BanLevel2Duration = 6 * time.Hour
	BanLevel3Duration = 24 * time.Hour
	// A new ban within this window of the previous one escalates the level.
	BanEscalationWindow = 7 * 24 * time.Hour
	MaxBanLevel         = 3

	// Connection
	SendBufferSize = 256
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10

	// Worst case for one rune in a JSON string: a surrogate pair written as
	// two \uXXXX escapes.
	maxEscapedRuneSize = 12
	// Room for the envelope, the event name and markup around the text.
	frameOverhead = 4 << 10
)

// FrameSizeLimit returns the read limit for inbound frames that must carry a
// message of up to maxMessageLength runes.
func FrameSizeLimit(maxMessageLength int) int64 {
	if maxMessageLength < 0 {
		maxMessageLength = 0
	}
	return int64(maxMessageLength)*maxEscapedRuneSize + frameOverhead
}

// BanDuration returns how long a ban of the given level lasts.
func BanDuration(level int) time.Duration {
	switch level {
	case 1:
		return BanLevel1Duration
	case 2:
		return BanLevel2Duration
	default:
		return BanLevel3Duration
	}
}
