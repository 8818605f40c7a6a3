package styles

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name:        "default",
	BorderStyle: "rounded",
	Palette:     append([]string(nil), IdentityPalette...),
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
		Error:      "203",
	},
	Message: MessageColors{
		Own:     "81",
		Other:   "147",
		Pending: "243",
	},
	Connection: ConnectionColors{
		Open:       "41",
		Connecting: "220",
		Closed:     "203",
	},
	Chrome: ChromeColors{
		Header:       "111",
		Footer:       "110",
		SelectedItem: "75",
	},
	Borders: BorderColors{
		ActivePane:   "75",
		InactivePane: "240",
		Divider:      "238",
	},
}
