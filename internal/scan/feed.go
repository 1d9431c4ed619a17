package scan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// Feed reads one decoded payload per line from r and hands each to Scan
// without waiting for the previous one, the way a camera decoder fires on
// every frame. Overlapping and cooldown scans are dropped by the validator.
// onResult, when set, is called from the scanning goroutine for every
// terminal result. Feed returns when r is exhausted or ctx is done.
func (v *Validator) Feed(ctx context.Context, r io.Reader, onResult func(Result)) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				wg.Wait()
				select {
				case err := <-readErr:
					return err
				default:
					return ctx.Err()
				}
			}
			wg.Add(1)
			go func(payload string) {
				defer wg.Done()
				res, err := v.Scan(ctx, payload)
				if errors.Is(err, ErrSuppressed) || errors.Is(err, ErrEmptyPayload) {
					return
				}
				if onResult != nil {
					onResult(res)
				}
			}(line)
		}
	}
}
