package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/sse"
	"github.com/Davygupta47/notebook/internal/textutil"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const thinkingWidth = 100

// progressRenderer prints stream frames as terminal lines.
type progressRenderer struct {
	out      io.Writer
	colorize bool
	verbose  bool
	title    cases.Caser
}

func newProgressRenderer(out io.Writer, verbose bool) *progressRenderer {
	return &progressRenderer{
		out:      out,
		colorize: shouldColorize(out),
		verbose:  verbose,
		title:    cases.Title(language.English),
	}
}

func (r *progressRenderer) render(frame sse.Frame) error {
	switch frame.Event {
	case jobs.EventThinking:
		if !r.verbose {
			return nil
		}
		var f jobs.ThinkingFrame
		if err := frame.Decode(&f); err != nil {
			return nil
		}
		r.line(ansiDim, "  … "+textutil.FirstLine(f.Text, thinkingWidth))
	case jobs.EventProgress:
		var f jobs.ProgressFrame
		if err := frame.Decode(&f); err != nil {
			return nil
		}
		label := fmt.Sprintf("[%d] %s", f.Step, r.title.String(f.Name))
		if f.Detail != "" {
			label += ": " + f.Detail
		}
		r.line(ansiBlue, label)
	case jobs.EventDraftReady:
		var f jobs.ArtifactFrame
		if err := frame.Decode(&f); err != nil {
			return nil
		}
		r.line(ansiYellow, fmt.Sprintf("Draft ready: %s (%d KB)", f.JobID, f.SizeKB))
	case jobs.EventComplete:
		var f jobs.ArtifactFrame
		if err := frame.Decode(&f); err != nil {
			return nil
		}
		r.line(ansiGreen, fmt.Sprintf("Complete: %s (%d KB)", f.JobID, f.SizeKB))
	case jobs.EventError:
		var f jobs.ErrorFrame
		_ = frame.Decode(&f)
		r.line(ansiRed, "Error: "+f.Error)
	}
	return nil
}

func (r *progressRenderer) line(color, text string) {
	if r.colorize && color != "" {
		text = color + text + ansiReset
	}
	fmt.Fprintln(r.out, text)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
