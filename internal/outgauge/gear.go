package outgauge

// Gear byte encodings seen in the wild, in match precedence order.
// ASCII encodings first ('R', 'N', digits), then BeamNG's 1-indexed
// numeric scheme (1=neutral .. 10=gear9), then two reverse markers.
//
// A bare zero byte decodes to reverse while ASCII 'N' decodes to
// neutral. The asymmetry distinguishes a client that really sent 'N'
// from an uninitialised struct; keep it as is.
var gearRules = []struct {
	match func(b byte) bool
	value func(b byte) int
}{
	{
		match: func(b byte) bool { return b == 'R' || b == 'r' },
		value: func(byte) int { return -1 },
	},
	{
		match: func(b byte) bool { return b == 'N' || b == 'n' },
		value: func(byte) int { return 0 },
	},
	{
		match: func(b byte) bool { return b >= '0' && b <= '9' },
		value: func(b byte) int { return int(b - '0') },
	},
	{
		match: func(b byte) bool { return b >= 1 && b <= 10 },
		value: func(b byte) int { return int(b) - 1 },
	},
	{
		match: func(b byte) bool { return b == 0 },
		value: func(byte) int { return -1 },
	},
	{
		match: func(b byte) bool { return b == 0xFF },
		value: func(byte) int { return -1 },
	},
}

// decodeGear classifies a raw gear byte against the known encodings.
// The second return is false when no encoding matches; callers leave
// the sample's gear unset in that case.
func decodeGear(b byte) (int, bool) {
	for _, rule := range gearRules {
		if rule.match(b) {
			return rule.value(b), true
		}
	}
	return 0, false
}
