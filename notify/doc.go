// Package notify keeps the list of pending social notifications the UI
// shows outside of calls: connection requests received and connection
// requests accepted. Entries are identified by generated IDs so the UI
// can dismiss them individually.
package notify
