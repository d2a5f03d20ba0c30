// Package capture supervises external ffmpeg capture processes.
//
// A Supervisor starts one process per Spec, reads its progress stream on a
// dedicated goroutine and keeps a registry of Handles in creation order.
// Shutdown signals every live capture, waits for each process to be reaped
// and joins all workers before returning:
//
//	sup := capture.New(capture.Options{Bus: bus})
//	id, err := sup.Start(capture.Spec{
//	    Source:      "rtsp://192.168.0.10:554/stream",
//	    Destination: "front.ts",
//	})
//	progress, unsubscribe, _ := sup.Subscribe(id)
//	defer unsubscribe()
//	...
//	if err := sup.Shutdown(); err != nil {
//	    var timeout *capture.ShutdownTimeoutError
//	    if errors.As(err, &timeout) { ... }
//	}
//
// Lifecycle per handle:
//
//	starting -> running -> (stopping) -> exited | failed
//
// stopping is only entered through Stop or Shutdown. A process that exits on
// its own goes straight from running to exited or failed.
package capture
