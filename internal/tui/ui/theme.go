package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TableHeaderFg    tcell.Color
	TableCursorFg    tcell.Color
	TableCursorBg    tcell.Color
	TitleColor       tcell.Color
	UnreadColor      tcell.Color
	FlashInfoColor   tcell.Color
	FlashErrColor    tcell.Color
}

// LightTheme returns the light variant for bright terminals.
func LightTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorWhite,
		FgColor:          tcell.ColorBlack,
		BorderColor:      tcell.ColorDarkCyan,
		BorderFocusColor: tcell.ColorBlue,
		TableHeaderFg:    tcell.ColorBlack,
		TableCursorFg:    tcell.ColorWhite,
		TableCursorBg:    tcell.ColorDarkCyan,
		TitleColor:       tcell.ColorDarkMagenta,
		UnreadColor:      tcell.ColorDarkOrange,
		FlashInfoColor:   tcell.ColorDarkGoldenrod,
		FlashErrColor:    tcell.ColorRed,
	}
}

// DefaultTheme returns the dark campus theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorLightGray,
		BorderColor:      tcell.ColorTeal,
		BorderFocusColor: tcell.ColorAqua,
		TableHeaderFg:    tcell.ColorWhite,
		TableCursorFg:    tcell.ColorBlack,
		TableCursorBg:    tcell.ColorAqua,
		TitleColor:       tcell.ColorFuchsia,
		UnreadColor:      tcell.ColorOrange,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}
