// Package generate implements AI-backed drafting of short posts: the daily
// content-mode rotation, prompt construction from style and training data,
// quality gates on candidate text, and the orchestrator that fans out
// provider calls to produce a set of distinct options.
package generate

import (
	"strconv"
	"time"
)

// Rotation lists the content modes cycled through day by day.
var Rotation = []string{"daily_wins", "lesson_learned", "shipping_update"}

// ModeFor returns the content mode for the UTC day containing t. The day is
// read as the integer YYYYMMDD and reduced modulo the rotation length, so the
// mode is stable for a whole day and changes at UTC midnight.
func ModeFor(t time.Time) string {
	day, _ := strconv.Atoi(t.UTC().Format("20060102"))
	return Rotation[day%len(Rotation)]
}
