// Package session tracks the active generation session for the page. At
// most one session's results are live at a time: submitting a new subject
// supersedes the previous session, and events from a superseded run are
// dropped rather than applied to the new session's state.
package session
