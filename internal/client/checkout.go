package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// LinkCheckout prints a hosted checkout link carrying the submission
// metadata. The presenter completes payment in a browser and reports the
// transaction id back.
type LinkCheckout struct {
	BaseURL string
	PriceID string
	Out     io.Writer
}

// Link builds the checkout URL for req.
func (l *LinkCheckout) Link(req CheckoutRequest) (string, error) {
	u, err := url.Parse(l.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse checkout url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("checkout url %q is not absolute", l.BaseURL)
	}

	q := u.Query()
	if l.PriceID != "" {
		q.Set("price_id", l.PriceID)
	}
	q.Set("custom_data[submissionId]", req.SubmissionID)
	if req.PresenterName != "" {
		q.Set("custom_data[presenterName]", req.PresenterName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (l *LinkCheckout) Open(ctx context.Context, req CheckoutRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link, err := l.Link(req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(l.Out, "Complete payment at:\n  %s\n", link)
	return err
}
