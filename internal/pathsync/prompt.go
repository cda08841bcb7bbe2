package pathsync

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a content-line diff of both sides of a conflict.
func UnifiedDiff(info *ConflictInfo) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(info.LocalContent)),
		B:        difflib.SplitLines(string(info.RemoteContent)),
		FromFile: "local/" + info.Path,
		ToFile:   "remote/" + info.Path,
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("(diff unavailable: %v)", err)
	}
	return diff
}

// ConsolePrompter resolves conflicts interactively on a terminal.
type ConsolePrompter struct {
	In  io.Reader
	Out io.Writer
}

var (
	promptPath   = color.New(color.FgHiCyan, color.Bold).SprintFunc()
	promptAdd    = color.New(color.FgHiGreen).SprintFunc()
	promptDel    = color.New(color.FgHiRed).SprintFunc()
	promptAccent = color.New(color.FgHiYellow).SprintFunc()
)

func (p *ConsolePrompter) Choose(info *ConflictInfo, diff string) (Choice, error) {
	fmt.Fprintf(p.Out, "\nconflict: %s\n", promptPath(info.Path))
	p.printDiff(diff)

	reader := bufio.NewReader(p.In)
	for {
		fmt.Fprintf(p.Out, "keep [l]ocal, keep [r]emote, [m]erge in editor, [v]iew side by side, [s]kip: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return ChoiceCancel, nil
			}
			return ChoiceSkip, fmt.Errorf("read choice: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "l", "local":
			return ChoiceKeepLocal, nil
		case "r", "remote":
			return ChoiceKeepRemote, nil
		case "m", "merge":
			return ChoiceMerge, nil
		case "s", "skip":
			return ChoiceSkip, nil
		case "q", "quit":
			return ChoiceCancel, nil
		case "v", "view":
			p.printSideBySide(info)
		default:
			fmt.Fprintln(p.Out, "unrecognized choice")
		}
	}
}

func (p *ConsolePrompter) printDiff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(p.Out, promptAdd(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(p.Out, promptDel(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(p.Out, promptAccent(line))
		default:
			fmt.Fprint(p.Out, line)
		}
	}
}

func (p *ConsolePrompter) printSideBySide(info *ConflictInfo) {
	const width = 60
	localLines := strings.Split(string(info.LocalContent), "\n")
	remoteLines := strings.Split(string(info.RemoteContent), "\n")

	fmt.Fprintf(p.Out, "%-*s | %s\n", width, promptAccent("LOCAL"), promptAccent("REMOTE"))
	fmt.Fprintf(p.Out, "%s\n", strings.Repeat("-", width*2+3))
	for i := 0; i < len(localLines) || i < len(remoteLines); i++ {
		var l, r string
		if i < len(localLines) {
			l = localLines[i]
		}
		if i < len(remoteLines) {
			r = remoteLines[i]
		}
		if len(l) > width {
			l = l[:width-1] + "…"
		}
		fmt.Fprintf(p.Out, "%-*s | %s\n", width, l, r)
	}
}
