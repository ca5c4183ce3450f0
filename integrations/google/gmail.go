package google

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	// DefaultInboxQuery selects the inbox messages.
	DefaultInboxQuery = "in:inbox"
	// DefaultMaxResults is used when ListOptions.MaxResults is not set.
	DefaultMaxResults = 20

	me = "me"
)

// Email is a message summary.
type Email struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	// Body is the plain text body when requested, the snippet otherwise.
	Body string `json:"body"`
}

// ListOptions for ListMessages
type ListOptions struct {
	MaxResults  int64
	Query       string
	IncludeBody bool
}

// Gmail is the mail client of the signed in user.
type Gmail struct {
	oauth *OAuth
	opts  []option.ClientOption
}

// NewGmail returns the Gmail client,
// opts are applied after the authorized HTTP client.
func NewGmail(oauth *OAuth, opts ...option.ClientOption) *Gmail {
	return &Gmail{oauth: oauth, opts: opts}
}

// IsAuthenticated returns true when a token is stored.
func (g *Gmail) IsAuthenticated(ctx context.Context) bool {
	return g.oauth.IsAuthenticated(ctx)
}

func (g *Gmail) service(ctx context.Context) (*gmail.Service, error) {
	hc, err := g.oauth.Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, g.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "gmail: failed to create service")
	}
	return svc, nil
}

// ListMessages returns the newest messages matching the query.
func (g *Gmail) ListMessages(ctx context.Context, o ListOptions) ([]*Email, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	maxResults := o.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	res, err := svc.Users.Messages.List(me).
		Q(values.StringsCoalesce(o.Query, DefaultInboxQuery)).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("gmail", err)
	}

	list := res.Messages
	if int64(len(list)) > maxResults {
		list = list[:maxResults]
	}

	emails := make([]*Email, len(list))
	g2, gctx := errgroup.WithContext(ctx)
	for i, m := range list {
		g2.Go(func() error {
			call := svc.Users.Messages.Get(me, m.Id).Context(gctx)
			if o.IncludeBody {
				call = call.Format("full")
			} else {
				call = call.Format("metadata").MetadataHeaders("From", "Subject", "Date")
			}
			msg, err := call.Do()
			if err != nil {
				return err
			}
			emails[i] = toEmail(msg, o.IncludeBody)
			return nil
		})
	}
	if err = g2.Wait(); err != nil {
		return nil, apiError("gmail", err)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "listed", "count", len(emails), "body", o.IncludeBody)
	return emails, nil
}

func toEmail(msg *gmail.Message, includeBody bool) *Email {
	e := &Email{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				e.From = h.Value
			case "Subject":
				e.Subject = h.Value
			case "Date":
				e.Date = h.Value
			}
		}
	}
	if includeBody {
		e.Body = messageBody(msg.Payload)
	}
	if e.Body == "" {
		e.Body = msg.Snippet
	}
	return e
}

// messageBody returns the text/plain part,
// or the text/html part when there is no plain text.
func messageBody(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}

	var body string
	if p.Body != nil && p.Body.Data != "" {
		body = decodeBase64URL(p.Body.Data)
	}

	for _, part := range p.Parts {
		switch {
		case part.MimeType == "text/plain":
			if part.Body != nil && part.Body.Data != "" {
				return decodeBase64URL(part.Body.Data)
			}
		case part.MimeType == "text/html":
			if body == "" && part.Body != nil && part.Body.Data != "" {
				body = decodeBase64URL(part.Body.Data)
			}
		case len(part.Parts) > 0:
			if nested := messageBody(part); nested != "" {
				return nested
			}
		}
	}
	return body
}

func decodeBase64URL(s string) string {
	s = strings.TrimRight(s, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// some clients send the standard alphabet
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return ""
		}
	}
	return string(b)
}

// Send sends the HTML message and returns its ID.
func (g *Gmail) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	if to == "" {
		return "", errors.New("gmail: recipient is required")
	}
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	raw := strings.Join([]string{
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		htmlBody,
	}, "\r\n")

	msg, err := svc.Users.Messages.Send(me, &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return "", apiError("gmail", err)
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "sent", "to", to, "id", msg.Id)
	return msg.Id, nil
}

// Profile returns the email address of the signed in user.
func (g *Gmail) Profile(ctx context.Context) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}
	p, err := svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", apiError("gmail", err)
	}
	return p.EmailAddress, nil
}
