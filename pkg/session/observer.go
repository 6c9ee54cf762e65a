package session

// Observer is told about session lifecycle and traffic. Implementations must
// be safe for concurrent use.
type Observer interface {
	SessionOpened()
	SessionClosed()
	MessageReceived(action string)
	MessageSent(action string)
	SessionError(stage string)
}

type noopObserver struct{}

func (noopObserver) SessionOpened()         {}
func (noopObserver) SessionClosed()         {}
func (noopObserver) MessageReceived(string) {}
func (noopObserver) MessageSent(string)     {}
func (noopObserver) SessionError(string)    {}
