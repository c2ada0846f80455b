package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

var followPollInterval = 2 * time.Second

// LogLine is one container log event.
type LogLine struct {
	At      time.Time
	Stream  string
	Message string
}

// LogGroup returns the CloudWatch log group name for the stack.
func (d *Deployer) LogGroup() string {
	return "/" + d.cfg.Prefix()
}

// TailLogs fetches up to limit recent events across the task log streams,
// merged by timestamp. emit is called once per line.
func (d *Deployer) TailLogs(ctx context.Context, limit int, emit func(LogLine)) error {
	streams, err := d.recentStreams(ctx)
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		return fmt.Errorf("no log streams in %s yet", d.LogGroup())
	}

	var lines []LogLine
	for _, stream := range streams {
		out, err := d.aws.CloudWatch.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(d.LogGroup()),
			LogStreamName: aws.String(stream),
			StartFromHead: aws.Bool(false),
			Limit:         aws.Int32(int32(limit)),
		})
		if err != nil {
			d.log.Debug().Err(err).Str("stream", stream).Msg("failed to get log events")
			continue
		}
		for _, e := range out.Events {
			lines = append(lines, logLine(stream, e))
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].At.Before(lines[j].At) })
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for _, l := range lines {
		emit(l)
	}
	return nil
}

// FollowLogs streams new events from the task log streams until ctx is
// cancelled. Each stream keeps its own forward-token cursor, so an event
// that lands late on one stream is still emitted even when another stream
// has already produced newer timestamps. Events older than roughly a minute
// before the call are skipped.
func (d *Deployer) FollowLogs(ctx context.Context, emit func(LogLine)) error {
	start := time.Now().Add(-time.Minute).UnixMilli()
	cursors := make(map[string]*string)
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		streams, err := d.recentStreams(ctx)
		if err != nil {
			return err
		}
		for _, stream := range streams {
			input := &cloudwatchlogs.GetLogEventsInput{
				LogGroupName:  aws.String(d.LogGroup()),
				LogStreamName: aws.String(stream),
				StartFromHead: aws.Bool(true),
			}
			if token, ok := cursors[stream]; ok {
				input.NextToken = token
			} else {
				input.StartTime = aws.Int64(start)
			}
			out, err := d.aws.CloudWatch.GetLogEvents(ctx, input)
			if err != nil {
				continue
			}
			for _, e := range out.Events {
				emit(logLine(stream, e))
			}
			cursors[stream] = out.NextForwardToken
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recentStreams lists log streams ordered by last event time, newest first,
// capped to the service's desired count so one stream per running task.
func (d *Deployer) recentStreams(ctx context.Context) ([]string, error) {
	out, err := d.aws.CloudWatch.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(d.LogGroup()),
		OrderBy:      cwtypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(int32(d.cfg.DesiredCount)),
	})
	if err != nil {
		return nil, fmt.Errorf("describe log streams: %w", err)
	}
	var streams []string
	for _, s := range out.LogStreams {
		streams = append(streams, aws.ToString(s.LogStreamName))
	}
	return streams, nil
}

func logLine(stream string, e cwtypes.OutputLogEvent) LogLine {
	return LogLine{
		At:      time.UnixMilli(aws.ToInt64(e.Timestamp)),
		Stream:  stream,
		Message: strings.TrimRight(aws.ToString(e.Message), "\n"),
	}
}
