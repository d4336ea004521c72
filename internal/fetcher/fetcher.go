// Package fetcher pulls candidate messages out of a remote IMAP mailbox.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"intellinbox/pkg/metrics"
)

// Candidate is one fetched, parsed, non-promotional message ready for
// the persistence gate.
type Candidate struct {
	Sender     string
	Subject    string
	Body       string
	MessageID  string
	ReceivedAt time.Time
}

// Condition is the server-side search predicate for a sync run.
type Condition struct {
	// Unseen restricts the search to messages without the Seen flag.
	Unseen bool
	// Since restricts the search to messages received on or after the
	// given date. Zero means unbounded.
	Since time.Time
	// ExcludeSender drops messages whose sender contains this substring.
	// Applied client-side; IMAP header search support varies by server.
	ExcludeSender string
}

// ConnectionParams identify one remote mailbox. Password is plaintext;
// the caller decrypts the stored credential before handing it over.
type ConnectionParams struct {
	Server   string
	Address  string
	Password string
}

// Fetcher connects to IMAP mailboxes and returns parsed candidates.
type Fetcher struct {
	sessionTimeout time.Duration
	logger         *zap.Logger
}

func New(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		sessionTimeout: 60 * time.Second,
		logger:         logger,
	}
}

// FetchMessages opens an IMAP session, searches with the given condition
// and returns all matching, non-promotional messages in mailbox order.
// The session is always logged out, on every exit path. A failure of an
// individual message is skipped; connection-level failures are returned
// and are retryable.
func (f *Fetcher) FetchMessages(ctx context.Context, conn ConnectionParams, cond Condition) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, f.sessionTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := f.fetch(ctx, conn, cond)
	if err != nil {
		metrics.RecordIMAPSession("error", time.Since(start))
		return nil, err
	}
	metrics.RecordIMAPSession("ok", time.Since(start))
	return candidates, nil
}

func (f *Fetcher) fetch(ctx context.Context, conn ConnectionParams, cond Condition) ([]Candidate, error) {
	addr := conn.Server
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap: connecting to %s: %w", addr, err)
	}
	defer func() { _ = client.Logout().Wait() }()

	if err := client.Login(conn.Address, conn.Password).Wait(); err != nil {
		return nil, fmt.Errorf("imap: authentication failed for %s: %w", conn.Address, err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap: selecting INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{}
	if cond.Unseen {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if !cond.Since.IsZero() {
		criteria.Since = cond.Since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap: searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var candidates []Candidate
	for {
		if ctx.Err() != nil {
			return candidates, fmt.Errorf("imap: session timed out: %w", ctx.Err())
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			f.logger.Warn("Skipping message, fetch failed",
				zap.String("inbox", conn.Address),
				zap.Error(err),
			)
			metrics.IncrementFetched("fetch_error")
			continue
		}

		cand, keep := f.parseMessage(conn.Address, cond, buf, bodySection)
		if keep {
			candidates = append(candidates, cand)
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return candidates, fmt.Errorf("imap: fetching messages: %w", err)
	}

	return candidates, nil
}

// parseMessage turns one fetched message into a candidate, applying the
// emptiness, sender-exclusion and promotional filters.
func (f *Fetcher) parseMessage(
	inboxAddr string,
	cond Condition,
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
) (Candidate, bool) {
	var cand Candidate

	if buf.Envelope != nil {
		cand.Subject = buf.Envelope.Subject
		cand.MessageID = buf.Envelope.MessageID
		cand.ReceivedAt = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			cand.Sender = buf.Envelope.From[0].Addr()
		}
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		metrics.IncrementFetched("fetch_error")
		return cand, false
	}

	body, listUnsubscribe, err := extractBody(raw)
	if err != nil {
		f.logger.Warn("Skipping message, MIME parse failed",
			zap.String("inbox", inboxAddr),
			zap.String("message_id", cand.MessageID),
			zap.Error(err),
		)
		metrics.IncrementFetched("fetch_error")
		return cand, false
	}
	cand.Body = body

	if strings.TrimSpace(cand.Body) == "" {
		metrics.IncrementFetched("empty")
		return cand, false
	}

	if cond.ExcludeSender != "" &&
		strings.Contains(strings.ToLower(cand.Sender), strings.ToLower(cond.ExcludeSender)) {
		metrics.IncrementFetched("excluded")
		return cand, false
	}

	if IsPromotional(Signal{
		Sender:             cand.Sender,
		HasListUnsubscribe: listUnsubscribe,
		Body:               cand.Body,
	}) {
		metrics.IncrementFetched("promotional")
		return cand, false
	}

	metrics.IncrementFetched("kept")
	return cand, true
}

// extractBody parses the raw RFC 2822 message and returns the first
// text/plain part, walking multipart structures depth-first. If no
// plain part exists it falls back to the HTML part, then to the raw
// payload decoded as text. It also reports whether the message carries
// a List-Unsubscribe header.
func extractBody(raw []byte) (body string, listUnsubscribe bool, err error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not a parseable MIME structure; treat the whole payload as text.
		return string(raw), false, nil
	}
	defer mr.Close()

	listUnsubscribe = mr.Header.Get("List-Unsubscribe") != ""

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", listUnsubscribe, fmt.Errorf("reading MIME part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()

		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			plain = string(data)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			html = string(data)
		}
	}

	if plain != "" {
		return plain, listUnsubscribe, nil
	}
	return html, listUnsubscribe, nil
}
