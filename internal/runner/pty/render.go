package pty

import "github.com/tuzig/vt10x"

// RenderTail feeds raw captured bytes through a scratch vt10x terminal
// emulator and returns up to `lines` of the resulting visible screen,
// trimmed of trailing blank rows. Only this package's tests call it:
// the `terminal_tail` op (internal/ipc) splits the raw bytes on
// newlines without terminal emulation.
func RenderTail(data []byte, cols, rows, lines int) []string {
	if cols <= 0 {
		cols = 120
	}
	if rows <= 0 {
		rows = 40
	}
	if lines <= 0 || lines > rows {
		lines = rows
	}

	term := vt10x.New(vt10x.WithSize(cols, rows))
	_, _ = term.Write(data)

	all := make([]string, rows)
	for row := 0; row < rows; row++ {
		runes := make([]rune, 0, cols)
		for col := 0; col < cols; col++ {
			g := term.Cell(col, row)
			if g.Char == 0 {
				runes = append(runes, ' ')
			} else {
				runes = append(runes, g.Char)
			}
		}
		all[row] = trimTrailingSpace(string(runes))
	}

	// Drop trailing blank rows, then keep at most the last `lines`.
	end := len(all)
	for end > 0 && all[end-1] == "" {
		end--
	}
	all = all[:end]

	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return all
}

func trimTrailingSpace(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	return s[:i]
}
