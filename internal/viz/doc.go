// Package viz renders a co-simulation session live in the terminal.
//
// [Model] is a Bubble Tea model that advances a master.Session a few steps
// per frame and shows progress, a history plot of one logged column, the
// latest value of every column and, when two position columns are given,
// the track they trace on a braille [Canvas].
//
// # Key Bindings
//
//	Space   - Pause/Resume
//	Tab/←/→ - Select the plotted column
//	+/-     - Steps per frame
//	Q       - Quit
package viz
