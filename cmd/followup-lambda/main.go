package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/vetclinic-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/followup"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Job names accepted in the EventBridge rule detail.
const (
	jobFollowUps = "followups"
	jobSweep     = "sweep"
	jobOutbox    = "outbox"
	jobAll       = "all"
)

type runner interface {
	ProcessDue(ctx context.Context) (followup.Report, error)
	SweepOnce(ctx context.Context) (conversation.SweepReport, error)
	Drain(ctx context.Context) int
}

type detail struct {
	Job string `json:"job"`
}

type result struct {
	Job       string                    `json:"job"`
	FollowUps *followup.Report          `json:"follow_ups,omitempty"`
	Sweep     *conversation.SweepReport `json:"sweep,omitempty"`
	Delivered int                       `json:"outbox_delivered"`
}

func main() {
	cfg, logger := mainconfig.Load()
	ctx := context.Background()

	awsCfg, err := mainconfig.OptionalAWS(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{AWS: awsCfg})
	if err != nil {
		logger.Error("failed to build scheduled runner", "error", err)
		os.Exit(1)
	}
	jobs := appRunner{app: app, followUps: app.FollowUpWorker()}

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (result, error) {
		return handle(ctx, jobs, evt, logger)
	})
}

type appRunner struct {
	app       *bootstrap.App
	followUps *followup.Worker
}

func (r appRunner) ProcessDue(ctx context.Context) (followup.Report, error) {
	return r.followUps.ProcessDue(ctx)
}

func (r appRunner) SweepOnce(ctx context.Context) (conversation.SweepReport, error) {
	return r.app.SweepOnce(ctx)
}

func (r appRunner) Drain(ctx context.Context) int {
	return r.app.Deliverer.Drain(ctx)
}

func handle(ctx context.Context, jobs runner, evt events.CloudWatchEvent, logger *logging.Logger) (result, error) {
	job, err := jobName(evt)
	if err != nil {
		return result{}, err
	}
	res := result{Job: job}

	if job == jobFollowUps || job == jobAll {
		report, err := jobs.ProcessDue(ctx)
		if err != nil {
			return res, fmt.Errorf("follow-ups: %w", err)
		}
		res.FollowUps = &report
	}
	if job == jobSweep || job == jobAll {
		report, err := jobs.SweepOnce(ctx)
		if err != nil {
			return res, fmt.Errorf("sweep: %w", err)
		}
		res.Sweep = &report
	}
	// Sends above write outbox rows; flush them before the invocation ends.
	res.Delivered = jobs.Drain(ctx)

	logger.Info("scheduled run finished", "job", job, "outbox_delivered", res.Delivered)
	return res, nil
}

func jobName(evt events.CloudWatchEvent) (string, error) {
	var d detail
	if len(evt.Detail) > 0 {
		if err := json.Unmarshal(evt.Detail, &d); err != nil {
			return "", fmt.Errorf("invalid event detail: %w", err)
		}
	}
	job := strings.ToLower(strings.TrimSpace(d.Job))
	switch job {
	case "":
		return jobAll, nil
	case jobFollowUps, jobSweep, jobOutbox, jobAll:
		return job, nil
	default:
		return "", fmt.Errorf("unknown job %q", d.Job)
	}
}
