package status

import "time"

func (w *Writer) SetNow(now func() time.Time) {
	w.now = now
}
