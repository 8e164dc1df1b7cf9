package entity

// EmailMessage is the payload carried over the notification topic.
type EmailMessage struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
