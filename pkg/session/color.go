package session

import "github.com/cespare/xxhash/v2"

// Palette is the set of colors assigned to participants that the server
// did not give one.
var Palette = []string{
	"#E57373",
	"#F06292",
	"#BA68C8",
	"#7986CB",
	"#4FC3F7",
	"#4DB6AC",
	"#81C784",
	"#FFB74D",
	"#A1887F",
	"#90A4AE",
}

// ColorFor returns the palette color of userID. The same id always gets the
// same color, on every client.
func ColorFor(userID string) string {
	return Palette[xxhash.Sum64String(userID)%uint64(len(Palette))]
}
