//go:build !sdiff_debug

package sdiff

// selfCheckEnabled is false in ordinary builds; the cost of re-applying
// every generated frame is only worth paying with the sdiff_debug tag.
const selfCheckEnabled = false
