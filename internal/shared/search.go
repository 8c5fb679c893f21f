package shared

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE/ILIKE wildcards so user input matches
// literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
