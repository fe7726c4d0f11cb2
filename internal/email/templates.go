package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	TemplateBookingConfirmation = "booking_confirmation"
	TemplatePaymentFailed       = "payment_failed"
	TemplateWelcome             = "welcome"
	TemplateAdminNewUser        = "admin_new_user"
)

type BookingConfirmationData struct {
	UserName         string
	Title            string
	Kind             string
	StartsAt         string
	Venue            string
	Address          string
	Host             string
	Amount           string
	ConfirmationCode string
	BookingURL       string
}

type PaymentFailedData struct {
	UserName string
	Title    string
	Amount   string
	Reason   string
	RetryURL string
}

type WelcomeData struct {
	UserName string
	AppURL   string
}

type AdminNewUserData struct {
	AdminName  string
	UserName   string
	UserEmail  string
	TotalUsers int64
	AdminURL   string
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer turns template data into ready-to-send messages.
type Renderer struct {
	templates map[string]compiled
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]compiled)}
	for _, name := range []string{TemplateBookingConfirmation, TemplatePaymentFailed, TemplateWelcome, TemplateAdminNewUser} {
		c, err := compile(name)
		if err != nil {
			return nil, err
		}
		r.templates[name] = c
	}
	return r, nil
}

// MustRenderer panics when the embedded templates do not parse.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func compile(name string) (compiled, error) {
	subject, err := texttemplate.ParseFS(templateFS, "templates/"+name+".subject.tmpl")
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s subject: %w", name, err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/"+name+".text.tmpl")
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s text: %w", name, err)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/"+name+".html.tmpl")
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s html: %w", name, err)
	}
	return compiled{subject: subject, text: text, html: html}, nil
}

// Render builds the message for template name addressed to to.
func (r *Renderer) Render(name, to string, data any) (Message, error) {
	c, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("email: unknown template %q", name)
	}

	var subject, text, html bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := c.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}

	return Message{
		To:       to,
		Subject:  strings.TrimSpace(subject.String()),
		Text:     text.String(),
		HTML:     html.String(),
		Template: name,
	}, nil
}
