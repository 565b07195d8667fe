package process

import (
	"bufio"
	"errors"
	"io"
)

// maxLineSize bounds a single output line handed to a LineFunc. Longer
// lines are cut; the rest of the line is read and dropped.
const maxLineSize = 1024 * 1024

// readLines calls onLine for every line of r until EOF. A read error other
// than EOF is returned after the rest of r has been drained, so the writer
// on the other end of a pipe never blocks on us.
func readLines(r io.Reader, onLine LineFunc) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		line []byte
		cut  bool
	)
	emit := func() {
		if onLine != nil {
			onLine(string(line))
		}
		line = line[:0]
		cut = false
	}

	for {
		chunk, more, err := br.ReadLine()
		if !cut {
			if room := maxLineSize - len(line); len(chunk) > room {
				chunk = chunk[:room]
				cut = true
			}
			line = append(line, chunk...)
		}

		if err != nil {
			if len(line) > 0 {
				emit()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			_, _ = io.Copy(io.Discard, r)
			return err
		}
		if !more {
			emit()
		}
	}
}
