package imgdate

import (
	"errors"
	"image"
	"runtime"
	"sync"
)

var errBuffer = errors.New("pixel buffer does not match image bounds")

// parallel processes the rows [start, stop) in separate goroutines.
// It returns only after every row has been processed.
func parallel(start, stop int, fn func(<-chan int)) {
	count := stop - start
	if count < 1 {
		return
	}

	procs := runtime.GOMAXPROCS(0)
	if procs > count {
		procs = count
	}

	c := make(chan int, count)
	for i := start; i < stop; i++ {
		c <- i
	}
	close(c)

	var wg sync.WaitGroup
	for i := 0; i < procs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(c)
		}()
	}
	wg.Wait()
}

// clamp rounds and clamps float64 value to fit into uint8.
// NaN maps to 0.
func clamp(x float64) uint8 {
	if !(x > 0) {
		return 0
	}
	if x >= 254.5 {
		return 255
	}
	return uint8(x + 0.5)
}

// checkBuffer verifies that a buffer of n elements with the given stride
// holds r with size elements per pixel.
func checkBuffer(n, stride, size int, r image.Rectangle) error {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return errBuffer
	}
	if stride < w*size || n < (h-1)*stride+w*size {
		return errBuffer
	}
	return nil
}
