/*
Package timeshift replays live camera frames a configurable number of
seconds behind real time.

A Scheduler captures a frame on every tick, stamps it with the tick's
monotonic time and pushes it into a fixed size frame ring. It then looks
up the oldest buffered frame stamped at or after now minus the delay and
emits it to a Sink. Once the ring is full the oldest frame is dropped on
every push, so memory is bounded no matter the delay; a delay reaching
further back than the ring holds plays the oldest frame available.

	s := timeshift.New(timeshift.Settings{
		Open: func(ctx context.Context) (camera.Connection, error) {
			return camera.ConnectWithCancel(ctx, "porch", "0", camera.Settings{}, videobackend.Default())
		},
		Sink: videosink.NewDisplay(videobackend.Default().NewDisplay("porch")),
	})
	s.SetDelay(2.5)
	if err := s.Start(ctx); err != nil {
		// errors.Is(err, timeshift.ErrCaptureUnavailable)
	}
	defer s.Stop()
*/
package timeshift
