package ingest

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Processor handles one ingested message.
//
// Process is called from several workers concurrently and must be safe
// for that. A returned error is logged and counted; it never stops the
// dispatcher.
type Processor interface {
	Process(ctx context.Context, msg message.RawMessage) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, msg message.RawMessage) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, msg message.RawMessage) error {
	return f(ctx, msg)
}

// Chain runs processors in order. Every processor sees every message;
// their errors are joined.
type Chain []Processor

// Process implements Processor.
func (c Chain) Process(ctx context.Context, msg message.RawMessage) error {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		if err := p.Process(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogProcessor writes one debug line per message. It is the default
// processor when nothing else is configured.
type LogProcessor struct {
	Logger Logger
}

// Process implements Processor.
func (p LogProcessor) Process(_ context.Context, msg message.RawMessage) error {
	if p.Logger == nil {
		return nil
	}
	p.Logger.Debug("message ingested",
		"message_id", msg.ID(),
		"gateway_id", msg.GatewayID(),
		"network", msg.NetworkType(),
		"sub_data", msg.SubData(),
		"bytes", msg.Len(),
	)
	return nil
}

// RawArchiver stores inbound payloads. *influxdb.Client implements it.
type RawArchiver interface {
	WriteRawMessage(m influxdb.MessagePoint)
	IsConnected() bool
}

// ArchiveProcessor writes every message as a raw_messages point.
// The payload is stored as an opaque string; nothing is decoded.
type ArchiveProcessor struct {
	Archive RawArchiver
}

// Process implements Processor.
func (p ArchiveProcessor) Process(_ context.Context, msg message.RawMessage) error {
	if p.Archive == nil || !p.Archive.IsConnected() {
		return ErrArchiveUnavailable
	}
	p.Archive.WriteRawMessage(influxdb.MessagePoint{
		MessageID:   msg.ID(),
		GatewayID:   msg.GatewayID(),
		NetworkType: string(msg.NetworkType()),
		SubData:     msg.SubData(),
		Payload:     msg.Data(),
		At:          msg.Timestamp(),
	})
	return nil
}
