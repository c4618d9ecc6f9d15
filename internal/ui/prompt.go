package ui

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Prompt is a single-line input with a styled prefix
type Prompt struct {
	label     string
	input     textinput.Model
	submitted bool
	cancelled bool
}

// NewPrompt creates a prompt. Secret prompts mask their input.
func NewPrompt(label string, secret bool) Prompt {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 256
	ti.Width = 48
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	ti.Focus()

	return Prompt{label: label, input: ti}
}

// Value returns the trimmed input value
func (p *Prompt) Value() string {
	return strings.TrimSpace(p.input.Value())
}

// Submitted reports whether enter was pressed with a non-empty value
func (p *Prompt) Submitted() bool {
	return p.submitted
}

// Cancelled reports whether the user pressed esc or ctrl+c
func (p *Prompt) Cancelled() bool {
	return p.cancelled
}

// Update handles input events
func (p *Prompt) Update(msg tea.Msg) (*Prompt, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEnter:
			if p.Value() != "" {
				p.submitted = true
			}
			return p, nil
		case tea.KeyEsc, tea.KeyCtrlC:
			p.cancelled = true
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View renders the prompt
func (p *Prompt) View() string {
	if p.submitted || p.cancelled {
		return ""
	}
	return HelpStyle.Render(p.label) + "\n" + PromptStyle.Render(SymbolPrompt) + " " + p.input.View() + "\n"
}

type promptModel struct {
	prompt Prompt
}

func (m promptModel) Init() tea.Cmd { return textinput.Blink }

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	_, cmd := m.prompt.Update(msg)
	if m.prompt.Submitted() || m.prompt.Cancelled() {
		return m, tea.Quit
	}
	return m, cmd
}

func (m promptModel) View() string { return m.prompt.View() }

// Ask runs a prompt on in/out until enter, esc or ctx ends
func Ask(ctx context.Context, in io.Reader, out io.Writer, label string, secret bool) (string, error) {
	p := tea.NewProgram(promptModel{prompt: NewPrompt(label, secret)},
		tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	m := final.(promptModel)
	if m.prompt.Cancelled() {
		return "", ErrCancelled
	}
	return m.prompt.Value(), nil
}
