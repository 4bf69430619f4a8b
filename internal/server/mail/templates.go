package mail

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	RecoverySubject     = "Password recovery"
	RegistrationSubject = "Welcome aboard"
)

type linkData struct {
	Name string
	Link string
}

func render(name string, data linkData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RecoveryMessage renders the password recovery email for to.
func RecoveryMessage(to, name, link string) (Message, error) {
	body, err := render("recovery.html", linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: RecoverySubject, HTML: body}, nil
}

// RegistrationMessage renders the welcome email sent after sign-up.
func RegistrationMessage(to, name, link string) (Message, error) {
	body, err := render("registration.html", linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: RegistrationSubject, HTML: body}, nil
}
