package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"hirexp-auth/internal/events"
)

type templateData struct {
	Name        string
	Link        string
	ExpiresAt   string
	LockedUntil string
	Status      string
	SupportURL  string
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html><html><body style="font-family:sans-serif;color:#1f2937">{{template "content" .}}<p style="color:#6b7280;font-size:12px">HireXP</p></body></html>`

func mustTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	template.Must(t.New("content").Parse(content))
	return t
}

var emailTemplates = map[string]emailTemplate{
	events.SubjectUserRegistered: {
		subject: "Confirm your HireXP email address",
		body: mustTemplate("verify", `<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Confirm your email address to activate your account.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>This link expires {{.ExpiresAt}}.</p>`),
	},
	events.SubjectVerificationRequested: {
		subject: "Your new HireXP verification link",
		body: mustTemplate("verify-again", `<p>Here is a fresh link to verify your email address.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>This link expires {{.ExpiresAt}}. Earlier links no longer work.</p>`),
	},
	events.SubjectPasswordResetRequested: {
		subject: "Reset your HireXP password",
		body: mustTemplate("reset", `<p>Someone asked to reset the password for this account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>This link expires {{.ExpiresAt}}. If it was not you, ignore this email.</p>`),
	},
	events.SubjectPasswordChanged: {
		subject: "Your HireXP password was changed",
		body: mustTemplate("changed", `<p>The password for your account was just changed and every other session was signed out.</p>
<p>If this was not you, <a href="{{.SupportURL}}">reset your password</a> right away.</p>`),
	},
	events.SubjectAccountLocked: {
		subject: "Your HireXP account is temporarily locked",
		body: mustTemplate("locked", `<p>We locked your account after several failed sign-in attempts.</p>
<p>You can try again after {{.LockedUntil}}, or <a href="{{.SupportURL}}">reset your password</a> now.</p>`),
	},
	events.SubjectAccountStatusChanged: {
		subject: "Your HireXP account status changed",
		body: mustTemplate("status", `<p>An administrator changed your account status to <strong>{{.Status}}</strong>.</p>`),
	},
}

// Render builds the email for an account event. frontendURL is the web app base used in links.
func Render(event events.AccountEvent, frontendURL string) (Email, error) {
	tpl, ok := emailTemplates[event.EventType]
	if !ok {
		return Email{}, fmt.Errorf("no email template for %q", event.EventType)
	}

	data := templateData{
		Name:       event.Name,
		Status:     event.Status,
		SupportURL: frontendURL + "/forgot-password",
	}
	if event.ExpiresAt != nil {
		data.ExpiresAt = event.ExpiresAt.UTC().Format(time.RFC1123)
	}
	if event.LockedUntil != nil {
		data.LockedUntil = event.LockedUntil.UTC().Format(time.RFC1123)
	}

	switch event.EventType {
	case events.SubjectUserRegistered, events.SubjectVerificationRequested:
		if event.Token == "" {
			return Email{}, fmt.Errorf("%s event without token", event.EventType)
		}
		data.Link = frontendURL + "/verify-email?token=" + event.Token
	case events.SubjectPasswordResetRequested:
		if event.Token == "" {
			return Email{}, fmt.Errorf("%s event without token", event.EventType)
		}
		data.Link = frontendURL + "/reset-password?token=" + event.Token
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return Email{}, err
	}

	return Email{
		To:      event.Email,
		ToName:  event.Name,
		Subject: tpl.subject,
		HTML:    buf.String(),
	}, nil
}
