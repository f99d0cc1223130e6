package workflow

// NotificationListenerModel configures a listener attached to the workflow
// for the duration of a run.
type NotificationListenerModel struct {
	FactoryID string

	identifier string
	pubURL     string
	syncURL    string
	emit       emitFunc
}

// NewNotificationListenerModel creates a detached listener model.
func NewNotificationListenerModel(factoryID, identifier, pubURL, syncURL string) *NotificationListenerModel {
	return &NotificationListenerModel{
		FactoryID:  factoryID,
		identifier: identifier,
		pubURL:     pubURL,
		syncURL:    syncURL,
	}
}

// Identifier returns the session identifier sent in handshake frames.
func (n *NotificationListenerModel) Identifier() string { return n.identifier }

// PubURL returns the address events are published to.
func (n *NotificationListenerModel) PubURL() string { return n.pubURL }

// SyncURL returns the address of the request/reply channel.
func (n *NotificationListenerModel) SyncURL() string { return n.syncURL }

// SetIdentifier changes the session identifier.
func (n *NotificationListenerModel) SetIdentifier(id string) {
	n.identifier = id
	n.notify()
}

// SetURLs changes both transport addresses.
func (n *NotificationListenerModel) SetURLs(pubURL, syncURL string) {
	n.pubURL = pubURL
	n.syncURL = syncURL
	n.notify()
}

func (n *NotificationListenerModel) attach(fn emitFunc) { n.emit = fn }

func (n *NotificationListenerModel) notify() {
	if n.emit != nil {
		n.emit(Change{Kind: ChangeListener, Subject: n})
	}
}
