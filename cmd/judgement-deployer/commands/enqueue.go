package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/judgement"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// judgementSender enqueues a single judgement link
type judgementSender interface {
	SendJudgement(ctx context.Context, link string) (string, error)
}

func EnqueueCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "Send judgement links to the ingest queue",
		Description: `Send {"judgementPdfLink": "<url>"} messages to the ingest queue.

Links come from --url (repeatable) and from --file, one link per line.
Blank lines and lines starting with # are ignored.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "queue-url",
				Aliases:  []string{"q"},
				Usage:    "SQS queue URL",
				Required: true,
				EnvVars:  []string{"QUEUE_URL"},
			},
			&cli.StringSliceFlag{
				Name:  "url",
				Usage: "judgement PDF link (can be specified multiple times)",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "file of judgement links, - for stdin",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "messages sent at once",
				Value: 4,
			},
			regionFlag(),
		},
		Action: func(c *cli.Context) error {
			return enqueueAction(c, logger)
		},
	}
}

func enqueueAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	links := c.StringSlice("url")
	if path := c.String("file"); path != "" {
		var r io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open links file: %w", err)
			}
			defer f.Close()
			r = f
		}
		fileLinks, err := readLinks(r)
		if err != nil {
			return err
		}
		links = append(links, fileLinks...)
	}
	if len(links) == 0 {
		return fmt.Errorf("no links given, use --url or --file")
	}

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}

	queue := services.NewQueue(sqs.NewFromConfig(cfg), c.String("queue-url"))
	sent, err := enqueue(ctx, logger, queue, links, c.Int("concurrency"))
	logger.Info().
		Int("sent", sent).
		Int("links", len(links)).
		Msg("enqueue finished")
	return err
}

// readLinks returns the non-blank, non-comment lines of r
func readLinks(r io.Reader) ([]string, error) {
	var links []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}
	return links, nil
}

// enqueue validates every link before sending any, then sends them with bounded concurrency
func enqueue(ctx context.Context, logger *zerolog.Logger, sender judgementSender, links []string, concurrency int) (int, error) {
	for _, link := range links {
		if _, err := judgement.UniqueID(link); err != nil {
			return 0, err
		}
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	sent := make([]bool, len(links))
	for i, link := range links {
		group.Go(func() error {
			messageID, err := sender.SendJudgement(ctx, link)
			if err != nil {
				return err
			}
			sent[i] = true
			logger.Info().
				Str("message_id", messageID).
				Str("link", link).
				Msg("enqueued judgement")
			return nil
		})
	}
	err := group.Wait()

	var n int
	for _, ok := range sent {
		if ok {
			n++
		}
	}
	return n, err
}
