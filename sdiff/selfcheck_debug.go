//go:build sdiff_debug

package sdiff

// selfCheckEnabled is true only in builds tagged sdiff_debug, turning on
// the round-trip self-check §4.5 requires: every generated frame is
// re-applied and compared against the intended new buffer before
// GenerateRanged returns.
const selfCheckEnabled = true
