package emailsvc

import (
	"net/http"
	"net/mail"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/wazazi/core"
)

const sendAttempts = 3

var retryBackoff = time.Second // mockable

// deliverFunc posts a prepared mail and returns the API status.
type deliverFunc func(m *sgmail.SGMailV3) (status int, body string, err error)

type sendgridService struct {
	from            *sgmail.Email
	subjPrefix      string
	category        string
	frontendBaseURL string
	deliver         deliverFunc
	logger          core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	client := sendgrid.NewSendClient(conf.SendgridApiKey)
	return newSendgridService(conf, logger, func(m *sgmail.SGMailV3) (int, string, error) {
		res, err := client.Send(m)
		if err != nil {
			return 0, "", err
		}
		return res.StatusCode, res.Body, nil
	})
}

func newSendgridService(conf *core.Config, logger core.Logger, deliver deliverFunc) *sendgridService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		from:            sgmail.NewEmail(from.Name, from.Address),
		subjPrefix:      "[" + conf.AppName + "] ",
		category:        conf.Env,
		frontendBaseURL: conf.FrontendBaseURL,
		deliver:         deliver,
		logger:          logger,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(svc.frontendBaseURL); err != nil {
				svc.logger.Error("rendering email", err, map[string]interface{}{"template": msg.TemplateName})
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				svc.send(*msg)
			}
		}()
	}
}

// prepare builds the v3 payload, tagged with the env and template categories.
func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(toSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(toSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(toSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	if svc.category != "" {
		m.AddCategories(svc.category)
	}
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func toSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// send delivers msg, retrying throttled and server-side failures.
func (svc *sendgridService) send(msg core.EmailMessage) bool {
	m := svc.prepare(msg)
	fields := map[string]interface{}{"subject": msg.Subject, "template": msg.TemplateName}

	for attempt := 1; attempt <= sendAttempts; attempt++ {
		status, body, err := svc.deliver(m)
		switch {
		case err == nil && status < http.StatusBadRequest:
			return true
		case err == nil && !retryable(status):
			fields["status"], fields["body"] = status, body
			svc.logger.Error("sending email", fields)
			return false
		}

		fields["attempt"], fields["status"] = attempt, status
		if attempt == sendAttempts {
			if err != nil {
				svc.logger.Error("sending email", err, fields)
			} else {
				fields["body"] = body
				svc.logger.Error("sending email", fields)
			}
			return false
		}
		svc.logger.Warn("sending email failed, retrying", fields)
		time.Sleep(time.Duration(attempt) * retryBackoff)
	}
	return false
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
