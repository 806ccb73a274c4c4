//go:build linux

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

func openLine(chip string, offset int) (line, error) {
	if offset < 0 {
		return nil, fmt.Errorf("invalid gpio line %d", offset)
	}
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pwmaudio-status"))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return l, nil
}
