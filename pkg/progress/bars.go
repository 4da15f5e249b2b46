// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// termWidth returns the current terminal width, falling back to a sane
// default when stderr isn't a terminal (redirected to a file, CI logs).
func termWidth() int {
	w, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// Downloads renders one progress bar per in-flight asset download, sized to
// a known byte total. Call Wait (via the returned *mpb.Progress) once every
// download goroutine has called bar.Abort or let the bar complete.
type Downloads struct {
	p     *mpb.Progress
	quiet bool
}

func NewDownloads(quiet bool) *Downloads {
	if quiet {
		return &Downloads{quiet: true}
	}
	return &Downloads{p: mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithAutoRefresh(),
		mpb.WithWidth(termWidth()),
	)}
}

// Wrap decorates total-sized reader r with a named progress bar and returns
// the wrapped reader; the caller must read r to completion (or call
// SourceAbort) to keep the render loop from leaking.
func (d *Downloads) Wrap(name string, total int64, r io.Reader) io.Reader {
	if d.quiet || d.p == nil {
		return r
	}
	bar := d.p.New(total,
		mpb.BarStyle().Filler("="),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersKiloByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 60), "done"),
		),
	)
	return bar.ProxyReader(r)
}

func (d *Downloads) Wait() {
	if d.p != nil {
		d.p.Wait()
	}
}
