// Package ocr supervises a PaddleOCR-json worker process.
//
// A Client starts the worker, waits for its handshake line, and then feeds it
// one request at a time over stdin, pairing each stdout line with the oldest
// outstanding request. Callers may submit from any goroutine; requests made
// before the worker is ready are held and sent once the handshake arrives.
//
//	c, err := ocr.New(ocr.Options{Path: "/opt/ppocr/PaddleOCR-json"})
//	if err != nil {
//		return err
//	}
//	defer c.Terminate()
//
//	resp, err := c.Run(ctx, "receipt.png")
//
// Lifecycle: Starting, then Ready once the handshake parses, then Exited when
// the process ends. Exited is final: every request still pending fails with
// an *ExitedError and later submissions fail with ErrClosed.
package ocr
