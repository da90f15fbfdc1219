// Package viz is the terminal live view of a running cell.
//
// [Model] is a Bubble Tea model that steps a simulator a few times per
// frame. It plots the recorded voltages with asciigraph and draws the
// membrane potential along the segment arena on a Braille [Canvas].
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Re-initialize at v_init
//	Up/K  - Raise every stimulus amplitude by 10%
//	Down/J- Lower every stimulus amplitude by 10%
//	[ ]   - Halve/double steps per frame
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
