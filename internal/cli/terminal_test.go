package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/term"
)

type fakeTerminal struct {
	interactive bool
	asked       []int
}

func (f *fakeTerminal) IsTerminal(fd int) bool {
	f.asked = append(f.asked, fd)
	return f.interactive
}

func TestIsInteractiveTerminal_MatchesTerm(t *testing.T) {
	cli := NewCLI()
	for _, fd := range []int{int(os.Stdin.Fd()), int(os.Stdout.Fd()), int(os.Stderr.Fd()), -1} {
		assert.Equal(t, term.IsTerminal(fd), cli.isInteractiveTerminal(fd), "fd %d", fd)
	}
	assert.False(t, cli.isInteractiveTerminal(-1))
}

func TestIsInteractiveWriter(t *testing.T) {
	detector := &fakeTerminal{interactive: true}
	cli := NewCLI()
	cli.terminalDetector = detector

	assert.False(t, cli.isInteractiveWriter(&bytes.Buffer{}), "buffers are never terminals")
	assert.Empty(t, detector.asked)

	assert.True(t, cli.isInteractiveWriter(os.Stderr))
	assert.Equal(t, []int{int(os.Stderr.Fd())}, detector.asked)
}

func TestProgress(t *testing.T) {
	t.Run("silent when not a terminal", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewCLI().newProgress(&buf, 100)
		p.Update(50)
		p.Done()
		assert.Empty(t, buf.String())
	})

	t.Run("redraws on whole percent changes", func(t *testing.T) {
		f, err := os.CreateTemp(t.TempDir(), "progress")
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()

		cli := NewCLI()
		cli.terminalDetector = &fakeTerminal{interactive: true}
		p := cli.newProgress(f, 200)
		p.Update(0)
		p.Update(1) // still 0%
		p.Update(100)
		p.Done()
		p.Done()

		data, err := os.ReadFile(f.Name())
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, "\rrendering   0%\rrendering  50%\rrendering 100%\n", string(data))
	})
}
