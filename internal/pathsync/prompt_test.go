package pathsync

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolePrompterChoices(t *testing.T) {
	cases := []struct {
		input string
		want  Choice
	}{
		{"l\n", ChoiceKeepLocal},
		{"local\n", ChoiceKeepLocal},
		{"r\n", ChoiceKeepRemote},
		{"m\n", ChoiceMerge},
		{"s\n", ChoiceSkip},
		{"q\n", ChoiceCancel},
		// unrecognized input re-prompts
		{"bogus\nl\n", ChoiceKeepLocal},
		// view re-renders and re-prompts
		{"v\nr\n", ChoiceKeepRemote},
	}

	info := &ConflictInfo{
		Path:          "a.txt",
		LocalContent:  []byte("one\n"),
		RemoteContent: []byte("two\n"),
	}

	for _, tc := range cases {
		t.Run(strings.ReplaceAll(strings.TrimSpace(tc.input), "\n", ","), func(t *testing.T) {
			var out bytes.Buffer
			p := &ConsolePrompter{In: strings.NewReader(tc.input), Out: &out}
			choice, err := p.Choose(info, UnifiedDiff(info))
			require.NoError(t, err)
			assert.Equal(t, tc.want, choice)
			assert.Contains(t, out.String(), "a.txt")
		})
	}
}

func TestConsolePrompterEOFCancels(t *testing.T) {
	info := &ConflictInfo{Path: "a.txt"}
	p := &ConsolePrompter{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	choice, err := p.Choose(info, "")
	require.NoError(t, err)
	assert.Equal(t, ChoiceCancel, choice)
}
