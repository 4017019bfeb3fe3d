// Package model defines the wire types of the chat API.
package model

// ChatRequest is the inbound payload for both chat entry points.
type ChatRequest struct {
	Message string `json:"message"`
}

// MessageEvent carries one model text delta on the event stream.
type MessageEvent struct {
	Content string `json:"content"`
}

// ErrorEvent reports a failed turn on the event stream. The message is
// deliberately generic; details stay in the server log.
type ErrorEvent struct {
	Error string `json:"error"`
}

// EnvironmentResponse is the public view of an environment.
type EnvironmentResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
