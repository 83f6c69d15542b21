package main

import (
	"fmt"
	"io"
	"os"
)

// style is an ANSI SGR sequence. Styles are dropped under --no-color.
type style string

const (
	styleBold   style = "\033[1m"
	styleRed    style = "\033[31m"
	styleGreen  style = "\033[32m"
	styleYellow style = "\033[33m"
	styleCyan   style = "\033[36m"
	styleReset  style = "\033[0m"
)

func (s style) paint(text string) string {
	if noColor {
		return text
	}
	return string(s) + text + string(styleReset)
}

// notices receives status lines. Command results go to stdout so they can
// be piped.
var notices io.Writer = os.Stderr

func notice(s style, mark, format string, args ...any) {
	fmt.Fprintln(notices, s.paint(mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(styleGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notice(styleRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notice(styleYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notice(styleCyan, "→", format, args...) }

func printStatus(label, format string, args ...any) {
	fmt.Fprintf(notices, "  %s %s\n", styleBold.paint(label+":"), fmt.Sprintf(format, args...))
}

// star marks a favorited line and pads the others to the same width.
func star(favorited bool) string {
	if !favorited {
		return " "
	}
	return styleYellow.paint("★")
}

// shortID trims a favorite id to the prefix users type back.
func shortID(id string) string {
	return styleCyan.paint(id[:min(8, len(id))])
}

func position(p int) string {
	return styleCyan.paint(fmt.Sprintf("#%d", p))
}
