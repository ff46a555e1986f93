package auth

// palette is the fixed rotation of participant colors. New identities take
// the color at their creation index, wrapping when the group outgrows it.
var palette = []string{
	"#e6194b", // red
	"#3cb44b", // green
	"#4363d8", // blue
	"#f58231", // orange
	"#911eb4", // purple
	"#46b8b8", // teal
	"#f032e6", // magenta
	"#9a6324", // brown
	"#808000", // olive
	"#000075", // navy
}

// colorAt returns the palette color for the nth created identity.
func colorAt(n int) string {
	if n < 0 {
		n = 0
	}
	return palette[n%len(palette)]
}
