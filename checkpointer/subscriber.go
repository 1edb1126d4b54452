package checkpointer

// Subscriber handles event subscriptions.
type Subscriber struct {
	done            chan struct{}
	startedHandler  func(SchedulerStarted)
	advancedHandler func(CheckpointAdvanced)
	failedHandler   func(AdvanceFailed)
	roundHandler    func(RoundCompleted)
	shutdownHandler func(SchedulerShutdown)
}

// OnSchedulerStarted sets the handler for SchedulerStarted events
func OnSchedulerStarted(fn func(SchedulerStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.startedHandler = fn }
}

// OnCheckpointAdvanced sets the handler for CheckpointAdvanced events
func OnCheckpointAdvanced(fn func(CheckpointAdvanced)) func(*Subscriber) {
	return func(s *Subscriber) { s.advancedHandler = fn }
}

// OnAdvanceFailed sets the handler for AdvanceFailed events
func OnAdvanceFailed(fn func(AdvanceFailed)) func(*Subscriber) {
	return func(s *Subscriber) { s.failedHandler = fn }
}

// OnRoundCompleted sets the handler for RoundCompleted events
func OnRoundCompleted(fn func(RoundCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.roundHandler = fn }
}

// OnSchedulerShutdown sets the handler for SchedulerShutdown events
func OnSchedulerShutdown(fn func(SchedulerShutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.shutdownHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
// Example:
//
//	closer := checkpointer.NewSubscriber(events,
//	  checkpointer.OnRoundCompleted(func(r RoundCompleted) { ... }),
//	)
//	defer closer()  // Ensures all events processed before exit
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:            make(chan struct{}),
		startedHandler:  func(SchedulerStarted) {},   // nop by default
		advancedHandler: func(CheckpointAdvanced) {}, // nop by default
		failedHandler:   func(AdvanceFailed) {},      // nop by default
		roundHandler:    func(RoundCompleted) {},     // nop by default
		shutdownHandler: func(SchedulerShutdown) {},  // nop by default
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case SchedulerStarted:
				s.startedHandler(e)
			case CheckpointAdvanced:
				s.advancedHandler(e)
			case AdvanceFailed:
				s.failedHandler(e)
			case RoundCompleted:
				s.roundHandler(e)
			case SchedulerShutdown:
				s.shutdownHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
