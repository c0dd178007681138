package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/notepost/pkg/auth"
)

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mintGreen).
			Padding(0, 1)
)

// TUIPrompt asks for the code in a small interactive form. A code already on
// the clipboard is offered as the initial value.
type TUIPrompt struct {
	in  io.Reader
	out io.Writer

	// readClipboard is swapped in tests
	readClipboard func() (string, error)
}

// NewTUIPrompt creates a terminal prompt.
func NewTUIPrompt(in io.Reader, out io.Writer) *TUIPrompt {
	return &TUIPrompt{in: in, out: out, readClipboard: clipboard.ReadAll}
}

// RequestCode runs the form until the operator submits a valid code or quits.
func (p *TUIPrompt) RequestCode(ctx context.Context, challenge auth.Challenge) (string, error) {
	m := newCodeModel(challenge.Identifier, p.clipboardCode())

	program := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)

	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("code prompt failed: %w", err)
	}

	result, ok := final.(codeModel)
	if !ok || result.canceled {
		return "", ErrCanceled
	}
	return result.code, nil
}

func (p *TUIPrompt) clipboardCode() string {
	if p.readClipboard == nil {
		return ""
	}
	text, err := p.readClipboard()
	if err != nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if validateCode(text) != nil {
		return ""
	}
	return text
}

type codeModel struct {
	input      textinput.Model
	identifier string
	code       string
	err        error
	canceled   bool
}

func newCodeModel(identifier, prefill string) codeModel {
	ti := textinput.New()
	ti.Placeholder = "123456"
	ti.Prompt = "code> "
	ti.CharLimit = maxCodeLength
	ti.Width = maxCodeLength + 1
	ti.PromptStyle = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	if prefill != "" {
		ti.SetValue(prefill)
		ti.CursorEnd()
	}
	ti.Focus()

	return codeModel{input: ti, identifier: identifier}
}

func (m codeModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m codeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.canceled = true
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if err := validateCode(value); err != nil {
				m.err = err
				return m, nil
			}
			m.code = value
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.err = nil
	return m, cmd
}

func (m codeModel) View() string {
	if m.code != "" || m.canceled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Verification code"))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(fmt.Sprintf("Sent to %s", m.identifier)))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.input.View()))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	} else {
		b.WriteString(hintStyle.Render("enter to submit • esc to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}
