// Package theme holds terminal decoration for the CLI.
package theme

import (
	"fmt"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiPink  = "\033[95m"
	ansiBlue  = "\033[94m"
	ansiDim   = "\033[2m"
)

var logo = []string{
	" ▄▀▄ █▄ █ █ █▀▄ █▀▀ █▀▀",
	" █▀█ █ ▀█ █ █▀▄ ██▄ █▄▄",
}

// Banner is printed above help and after init.
func Banner() string {
	var b strings.Builder
	b.WriteString(ansiDim + " ◆ ANIREC ◆" + ansiReset + "\n")
	for i, line := range logo {
		color := ansiPink
		if i%2 == 1 {
			color = ansiBlue
		}
		b.WriteString(ansiBold + color + line + ansiReset + "\n")
	}
	b.WriteString(ansiDim + " scores from your list, picks for your queue" + ansiReset + "\n")
	return b.String()
}

func PrintBanner() {
	fmt.Print(Banner())
}
