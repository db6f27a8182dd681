package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/inbox"
	"github.com/mahaj/logchat/pkg/model"
)

var (
	selfStyle   = color.New(color.FgGreen, color.OpBold)
	friendStyle = color.New(color.FgCyan, color.OpBold)
	noticeStyle = color.New(color.FgRed)
	statusStyle = color.New(color.FgGray)
)

const prompt = "> "

// terminalView prints session updates as chat lines. Session calls and prompt
// redraws from the input loop share one writer.
type terminalView struct {
	chat.NopListener

	mu    sync.Mutex
	out   io.Writer
	local string
}

func newTerminalView(out io.Writer, local string) *terminalView {
	return &terminalView{out: out, local: local}
}

func (v *terminalView) StateChanged(state chat.State) {
	v.printf("%s\n", statusStyle.Render("-- "+state.String()))
}

func (v *terminalView) TranscriptReloaded(messages []model.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range messages {
		fmt.Fprintf(v.out, "\r%s\n", v.line(m))
	}
	fmt.Fprint(v.out, prompt)
}

func (v *terminalView) MessageAppended(_ int, msg model.Message) {
	v.printf("%s\n", v.line(msg))
}

func (v *terminalView) TypingChanged(handle string, typing bool) {
	if typing {
		v.printf("%s\n", statusStyle.Render(handle+" is typing..."))
	}
}

func (v *terminalView) Notice(err error) {
	v.printf("%s\n", noticeStyle.Render("! "+err.Error()))
}

func (v *terminalView) Prompt() {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.out, prompt)
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "\r"+format, args...)
	fmt.Fprint(v.out, prompt)
}

func (v *terminalView) line(m model.Message) string {
	name, style := "?", friendStyle
	if m.Sender != nil {
		name = m.Sender.DisplayName()
	}
	if m.SentBy(v.local) {
		name, style = "you", selfStyle
	}
	return fmt.Sprintf("%s %s: %s", statusStyle.Render(clock(m.Date)), style.Render(name), m.Body)
}

// clock shortens a backend date to HH:MM:SS.
func clock(date string) string {
	ts, err := model.ParseDate(date)
	if err != nil {
		return "--:--:--"
	}
	return ts.Local().Format("15:04:05")
}

// renderInbox prints the conversation list as a borderless table.
func renderInbox(out io.Writer, convs []inbox.Conversation) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Friend", "From", "Last message", "Date"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, c := range convs {
		from := c.Friend.Handle
		if c.Last.Sender != nil && !c.Last.Sender.Equal(c.Friend) {
			from = "you"
		}
		body := c.Last.Body
		if c.Error != "" {
			body = "error: " + c.Error
		}
		table.Append([]string{c.Friend.DisplayName(), from, body, c.Last.Date})
	}
	table.Render()
}
