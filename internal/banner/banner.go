package banner

import (
	"github.com/charmbracelet/lipgloss"

	"iiifload/internal/tui/styles"
)

const ascii = `
 _ _ _ _____ _                 _
(_|_|_)  ___| | ___   __ _  __| |
| | | | |_  | |/ _ \ / _' |/ _' |
| | | |  _| | | (_) | (_| | (_| |
|_|_|_|_|   |_|\___/ \__,_|\__,_|`

// GetString returns the styled program banner.
func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	tagline := styles.Subtle.Render("  synthetic IIIF Image API traffic")

	return "\n" + style.Render(ascii) + "\n" + tagline + "\n"
}
