// Package stages holds the concrete generation stages run by the pipeline:
// subject analysis, illustration, and persistence to the content library.
package stages
