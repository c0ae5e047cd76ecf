// Package types defines the value types shared by every combinator package:
// the Time instant with its Genesis/Horizon sentinels and the Sample pair.
package types
