// Package selection picks the build that best fits a device.
//
// The decision is pure: it never performs I/O and the same inputs always
// yield the same build. Builds are ranked newest first, then matched against
// the device label in three passes:
//
//   - an exact, case-sensitive match on the target device label
//   - a target device containing the label's OS token (the text before the
//     first space, or the whole label when it has none)
//   - the newest build overall
//
// The OS pass is a plain substring test. A target such as "Darwin Linuxbox"
// matches the token "Linux" even though it names another system.
package selection
