package app

import (
	"context"
	"fmt"
	"io"

	"flemme/internal/record"
)

// ListDevices prints the input devices, marking the default one.
func ListDevices(ctx context.Context, w io.Writer, backend record.Backend) error {
	r := record.New(backend)
	defer r.Close()
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, d.Name)
	}
	return nil
}
