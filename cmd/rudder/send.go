package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kon-rad/rudder-analytics-go/batcher"
	"github.com/kon-rad/rudder-analytics-go/document"
	"github.com/kon-rad/rudder-analytics-go/message"
	"github.com/kon-rad/rudder-analytics-go/wire"
)

const (
	maxLineBytes   = 1 << 20
	sendConcurrent = 4
)

func newKindCmds(c *cli) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(message.Types))
	for _, t := range message.Types {
		var anonymous bool
		cmd := &cobra.Command{
			Use:   string(t),
			Short: fmt.Sprintf("Send one %s event read as JSON from stdin", t),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.sendOne(cmd, t, anonymous)
			},
		}
		if t != message.TypeAlias {
			cmd.Flags().BoolVar(&anonymous, "anonymous", false, "generate an anonymousId when the event has none")
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (c *cli) sendOne(cmd *cobra.Command, t message.Type, anonymous bool) error {
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxLineBytes))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if anonymous {
		if data, err = withAnonymousID(data); err != nil {
			return err
		}
	}
	msg, err := message.Decode(t, data)
	if err != nil {
		return err
	}

	shared, err := c.cfg.SharedContext()
	if err != nil {
		return err
	}
	b, err := batcher.New(shared)
	if err != nil {
		return err
	}
	if _, err := b.Accept(msg); err != nil {
		return err
	}
	env := b.Finalize().Messages[0]

	res, err := c.pusher().Send(cmd.Context(), env)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s (%s, status %d, delivery %s)\n",
		t, env.Path(), humanize.Bytes(uint64(res.Bytes)), res.StatusCode, res.DeliveryID)
	return nil
}

// withAnonymousID sets a random anonymousId on a JSON event that carries
// neither identity.
func withAnonymousID(data []byte) ([]byte, error) {
	var doc document.Document
	if err := document.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if doc == nil {
		doc = document.Document{}
	}
	if id, _ := doc["userId"].(string); id != "" {
		return data, nil
	}
	if id, _ := doc["anonymousId"].(string); id != "" {
		return data, nil
	}
	doc["anonymousId"] = uuid.NewString()
	return json.Marshal(doc)
}

func newBatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Send newline-delimited events from stdin in size-bounded batches",
		Long: `Each stdin line is one JSON event whose "type" field names its kind.
Events are packed into batches of at most 512 KiB and posted to /v1/batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.sendBatches(cmd)
		},
	}
}

func (c *cli) sendBatches(cmd *cobra.Command) error {
	shared, err := c.cfg.SharedContext()
	if err != nil {
		return err
	}
	batches, err := packLines(cmd.InOrStdin(), shared)
	if err != nil {
		return err
	}

	p := c.pusher()
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(sendConcurrent)
	for _, batch := range batches {
		g.Go(func() error {
			_, err := p.SendBatch(ctx, batch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	events := 0
	for _, batch := range batches {
		events += len(batch.Messages)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d events in %d batches\n", events, len(batches))
	return nil
}

// packLines decodes one event per line and fills batches, starting a new one
// whenever the current batch hands an event back.
func packLines(r io.Reader, shared document.Document) ([]wire.Batch, error) {
	b, err := batcher.New(shared)
	if err != nil {
		return nil, err
	}

	var out []wire.Batch
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		msg, err := message.DecodeTagged(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rejected, err := b.Accept(msg)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rejected == nil {
			continue
		}
		out = append(out, b.Finalize())
		if b, err = batcher.New(shared); err != nil {
			return nil, err
		}
		if _, err := b.Accept(rejected); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if !b.Empty() {
		out = append(out, b.Finalize())
	}
	return out, nil
}
