package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user backs out of a selector or prompt
var ErrCancelled = errors.New("cancelled by user")

// SelectorItem represents an item in the selector
type SelectorItem struct {
	ID          string
	Label       string
	Description string
	Current     bool
	Disabled    bool
}

// Selector is an interactive list selector
type Selector struct {
	title    string
	items    []SelectorItem
	cursor   int
	selected int
	active   bool
}

// NewSelector creates a new selector with the cursor on the current item
func NewSelector(title string, items []SelectorItem) Selector {
	selected := 0
	for i, item := range items {
		if item.Current {
			selected = i
			break
		}
	}

	return Selector{
		title:    title,
		items:    items,
		cursor:   selected,
		selected: selected,
		active:   true,
	}
}

// Active returns whether the selector is active
func (s *Selector) Active() bool {
	return s.active
}

// Selected returns the selected item ID, or empty if cancelled
func (s *Selector) Selected() string {
	if s.selected >= 0 && s.selected < len(s.items) {
		return s.items[s.selected].ID
	}
	return ""
}

// Cancelled returns whether the selector was cancelled
func (s *Selector) Cancelled() bool {
	return !s.active && s.selected == -1
}

// Update handles selector input
func (s *Selector) Update(msg tea.Msg) (*Selector, tea.Cmd) {
	if !s.active {
		return s, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.items)-1 {
				s.cursor++
			}
		case "enter":
			if s.items[s.cursor].Disabled {
				return s, nil
			}
			s.selected = s.cursor
			s.active = false
		case "esc", "q", "ctrl+c":
			s.selected = -1
			s.active = false
		}
	}

	return s, nil
}

// View renders the selector
func (s *Selector) View() string {
	if !s.active {
		return ""
	}

	var b strings.Builder

	b.WriteString(HelpStyle.Render(s.title + " (↑/↓ navigate, enter select, esc cancel)"))
	b.WriteString("\n\n")

	for i, item := range s.items {
		isCursor := i == s.cursor

		if isCursor {
			b.WriteString(SelectorCursor.Render(SymbolArrow) + " ")
		} else {
			b.WriteString("  ")
		}

		display := item.Label
		if display == "" {
			display = item.ID
		}
		label := fmt.Sprintf("%-24s", display)
		switch {
		case item.Disabled:
			b.WriteString(SelectorDim.Render(label))
		case isCursor:
			b.WriteString(SelectorActive.Render(label))
		default:
			b.WriteString(SelectorItemStyle.Render(label))
		}

		desc := item.Description
		if item.Current {
			desc += " (current)"
		}
		if desc != "" {
			b.WriteString(SelectorDim.Render(desc))
		}

		b.WriteString("\n")
	}

	return b.String()
}

type selectorModel struct {
	sel Selector
}

func (m selectorModel) Init() tea.Cmd { return nil }

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.sel.Update(msg)
	if !m.sel.Active() {
		return m, tea.Quit
	}
	return m, nil
}

func (m selectorModel) View() string { return m.sel.View() }

// Select runs a selector on in/out and returns the chosen item ID
func Select(ctx context.Context, in io.Reader, out io.Writer, title string, items []SelectorItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("nothing to select")
	}
	p := tea.NewProgram(selectorModel{sel: NewSelector(title, items)},
		tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	m := final.(selectorModel)
	if m.sel.Cancelled() {
		return "", ErrCancelled
	}
	return m.sel.Selected(), nil
}
