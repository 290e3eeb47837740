// Package api exposes the generation session, content library, and
// narration service to the browser page over a local HTTP listener.
package api
