// Package ui provides the interactive terminal monitor for a connected
// kettle.
//
// The monitor is a Bubble Tea program: it shows the live status snapshot
// (temperature, setpoint, stage, mode, keep-warm hold) as notifications
// arrive, and turns key presses into session commands. Device events reach
// the model through a Feed, a channel-backed adapter between the session's
// callback API and Bubble Tea's message loop.
package ui
