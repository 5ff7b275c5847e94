package visualization

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nvandessel/contagion/internal/engine"
)

// DOTWriter writes one DOT file per observed round into a directory.
type DOTWriter struct {
	dir string
}

var _ engine.Observer = (*DOTWriter)(nil)

// NewDOTWriter creates dir and returns a writer targeting it.
func NewDOTWriter(dir string) (*DOTWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create dot dir: %w", err)
	}
	return &DOTWriter{dir: dir}, nil
}

// RoundFile returns the file name used for a round.
func RoundFile(model string, round int) string {
	return fmt.Sprintf("%s-round-%03d.dot", model, round)
}

// ObserveRound implements engine.Observer.
func (w *DOTWriter) ObserveRound(_ context.Context, ev engine.RoundEvent) error {
	title := fmt.Sprintf("%s round %d: %d new", ev.Model, ev.Round, ev.Events.New)
	dot := RenderDOT(ev.Graph, ev.Snapshot, PaletteFor(ev.Model), title)
	path := filepath.Join(w.dir, RoundFile(ev.Model, ev.Round))
	if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WritePlot prints the per-round record as a text listing, one line per
// round after the seed round.
func WritePlot(w io.Writer, record []int) error {
	if _, err := fmt.Fprintln(w, "Infections per Round"); err != nil {
		return err
	}
	for i := 1; i < len(record); i++ {
		if _, err := fmt.Fprintf(w, "Round %d: %d\n", i, record[i]); err != nil {
			return err
		}
	}
	return nil
}
