package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"genbot/internal/infra"
	"genbot/internal/orchestrator"
)

// consoleTransport is the development transport: outgoing messages are
// printed to stdout, inbound events are typed on stdin. Real deployments
// plug a messaging platform into the same interface.
type consoleTransport struct {
	out io.Writer
}

func (t *consoleTransport) SendText(ctx context.Context, externalID int64, text string) error {
	_, err := fmt.Fprintf(t.out, "[->%d] %s\n", externalID, text)
	return err
}

func (t *consoleTransport) SendPhoto(ctx context.Context, externalID int64, path, caption string) error {
	_, err := fmt.Fprintf(t.out, "[->%d] photo %s %s\n", externalID, path, caption)
	return err
}

func (t *consoleTransport) SendDocument(ctx context.Context, externalID int64, path string) error {
	_, err := fmt.Fprintf(t.out, "[->%d] document %s\n", externalID, path)
	return err
}

func (t *consoleTransport) SendButtons(ctx context.Context, externalID int64, text string, buttons []orchestrator.Button) error {
	if _, err := fmt.Fprintf(t.out, "[->%d] %s\n", externalID, text); err != nil {
		return err
	}
	for _, b := range buttons {
		if _, err := fmt.Fprintf(t.out, "[->%d]   (%s) %s\n", externalID, b.Token, b.Label); err != nil {
			return err
		}
	}
	return nil
}

// readLoop turns stdin lines into transport events until EOF or cancel.
//
//	/command [args]     command event
//	photo a.jpg b.jpg   grouped photo transmission
//	button <token>      button press
//	anything else       text event
func readLoop(ctx context.Context, dispatcher *orchestrator.Dispatcher, externalID int64, username string, logger infra.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, ev := range parseLine(line, externalID, username, logger) {
			dispatcher.Dispatch(ctx, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("bot: stdin read failed")
	}
}

func parseLine(line string, externalID int64, username string, logger infra.Logger) []orchestrator.Event {
	base := orchestrator.Event{ExternalID: externalID, Username: username}

	switch {
	case strings.HasPrefix(line, "/"):
		fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
		base.Kind = orchestrator.EventCommand
		base.Command = fields[0]
		if len(fields) == 2 {
			base.Text = strings.TrimSpace(fields[1])
		}
		return []orchestrator.Event{base}

	case strings.HasPrefix(line, "button "):
		base.Kind = orchestrator.EventButton
		base.Token = strings.TrimSpace(strings.TrimPrefix(line, "button "))
		return []orchestrator.Event{base}

	case strings.HasPrefix(line, "photo "):
		batchID := uuid.NewString()
		var events []orchestrator.Event
		for _, path := range strings.Fields(strings.TrimPrefix(line, "photo ")) {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("bot: cannot read photo")
				continue
			}
			ev := base
			ev.Kind = orchestrator.EventPhoto
			ev.Photo = data
			ev.PhotoName = filepath.Base(path)
			ev.BatchID = batchID
			events = append(events, ev)
		}
		return events

	default:
		base.Kind = orchestrator.EventText
		base.Text = line
		return []orchestrator.Event{base}
	}
}
