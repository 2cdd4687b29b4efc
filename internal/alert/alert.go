// Package alert posts failure notifications to Slack: one captured
// in-memory log buffer uploaded per fatal failure, tagged by source.
package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
)

// Source tags which component raised the alert.
type Source string

const (
	SourceData    Source = "data"
	SourceModel   Source = "model"
	SourcePID     Source = "pid"
	SourceWrapper Source = "wrapper"
	SourceImg     Source = "img"
	SourceWorker  Source = "worker"
	SourceFreeze  Source = "freeze-cronjob"
	SourceQC      Source = "qc-cronjob"
)

// Notifier posts a captured task log to a fixed Slack channel on fatal
// failure. A nil Notifier (no SLACK_API_TOKEN configured) is a silent
// no-op; alerting is strictly optional.
type Notifier struct {
	client  *slack.Client
	channel string
}

func New(cfg *config.Config) *Notifier {
	if cfg.SlackAPIToken == "" || cfg.SlackChannelID == "" {
		return nil
	}
	return &Notifier{client: slack.New(cfg.SlackAPIToken), channel: cfg.SlackChannelID}
}

// Context identifies the task that failed, included in the alert title.
type Context struct {
	Site           string
	Date           string
	Product        string
	Model          string
	InstrumentUUID string
}

func (c Context) String() string {
	var parts []string
	if c.Site != "" {
		parts = append(parts, "site="+c.Site)
	}
	if c.Date != "" {
		parts = append(parts, "date="+c.Date)
	}
	if c.Product != "" {
		parts = append(parts, "product="+c.Product)
	}
	if c.Model != "" {
		parts = append(parts, "model="+c.Model)
	}
	if c.InstrumentUUID != "" {
		parts = append(parts, "instrument="+c.InstrumentUUID)
	}
	return strings.Join(parts, " ")
}

// Send uploads log as a Slack file attachment titled with source, err
// and ctx. Failures to reach Slack are returned, not swallowed; callers
// (worker loop, cron jobs) log and continue.
func (n *Notifier) Send(ctx context.Context, source Source, err error, taskCtx Context, log string) error {
	if n == nil {
		return nil
	}
	title := fmt.Sprintf("[%s] %s: %s", source, taskCtx, err)
	_, fileErr := n.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  n.channel,
		Filename: fmt.Sprintf("%s.log", source),
		FileSize: len(log),
		Content:  log,
		Title:    title,
	})
	if fileErr != nil {
		return errors.Wrap(fileErr, "upload slack alert")
	}
	return nil
}
