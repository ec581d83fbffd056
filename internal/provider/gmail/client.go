package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
	"github.com/lu-zhengda/mailpilot/internal/provider"
)

const userID = "me"

// Client implements provider.MailProvider against the Gmail API.
type Client struct {
	service *gmailapi.Service
	limiter *rate.Limiter
}

// New creates a Gmail client using ts for credentials. perSecond caps the
// request rate; zero disables the cap.
func New(ctx context.Context, ts oauth2.TokenSource, perSecond int, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &Client{service: srv, limiter: limiter}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gmail rate limit: %w", err)
	}
	return nil
}

// ListMessageIDs returns a page of message ids matching opts.
func (c *Client) ListMessageIDs(ctx context.Context, opts provider.ListOptions) ([]string, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}

	call := c.service.Users.Messages.List(userID)
	if opts.MaxResults > 0 {
		call = call.MaxResults(int64(opts.MaxResults))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if len(opts.LabelIDs) > 0 {
		call = call.LabelIds(opts.LabelIDs...)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}

	resp, err := call.Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list gmail messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// GetMessage fetches a full message by id.
func (c *Client) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.service.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get gmail message %s: %w", id, err)
	}
	return mapMessage(msg), nil
}

// Search returns full messages matching a Gmail query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.Message, error) {
	ids, _, err := c.ListMessageIDs(ctx, provider.ListOptions{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		m, err := c.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

func (c *Client) ListLabels(ctx context.Context) ([]provider.Label, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.service.Users.Labels.List(userID).Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list gmail labels: %w", err)
	}
	labels := make([]provider.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, provider.Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

// MarkRead toggles the UNREAD label.
func (c *Client) MarkRead(ctx context.Context, id string, read bool) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req := &gmailapi.ModifyMessageRequest{}
	if read {
		req.RemoveLabelIds = []string{domain.LabelUnread}
	} else {
		req.AddLabelIds = []string{domain.LabelUnread}
	}
	_, err := c.service.Users.Messages.Modify(userID, id, req).Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return fmt.Errorf("failed to modify labels on message %s: %w", id, err)
	}
	return nil
}

// Send delivers msg and returns the id Gmail assigned to it.
func (c *Client) Send(ctx context.Context, msg *domain.OutgoingMessage) (string, error) {
	raw, err := compose(msg)
	if err != nil {
		return "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out := &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: msg.ThreadID,
	}
	sent, err := c.service.Users.Messages.Send(userID, out).Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return "", fmt.Errorf("failed to send gmail message: %w", err)
	}
	return sent.Id, nil
}

func (c *Client) Profile(ctx context.Context) (*provider.Profile, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	p, err := c.service.Users.GetProfile(userID).Context(ctx).Do()
	metrics.RecordExternalCall("gmail", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get gmail profile: %w", err)
	}
	return &provider.Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	}, nil
}

var _ provider.MailProvider = (*Client)(nil)
