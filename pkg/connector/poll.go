package connector

import (
	"context"
	"errors"
	"time"
)

func (qc *QQClient) pollLoop(ctx context.Context) {
	defer qc.markDone()

	log := qc.Log.With().Str("loop", "poll").Logger()
	log.Info().Msg("Started receiving messages")
	defer func() {
		log.Info().Msg("Stopped receiving messages")
	}()

	for {
		if qc.stopped.Load() || ctx.Err() != nil {
			return
		}

		// An in-flight poll survives Close and is bounded by the poll timeout.
		err := qc.pollOnce(context.WithoutCancel(ctx))
		switch {
		case err == nil:
			continue
		case IsTimeout(err):
			log.Trace().Msg("Poll timed out without messages")
			continue
		case errors.Is(err, ErrTransportClosed):
			return
		case errors.Is(err, ErrSessionInvalid):
			qc.notifySessionInvalid(err)
		default:
			log.Err(err).Msg("Failed to poll messages")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(qc.Main.Config.Poll.ErrorBackoff):
		}
	}
}

func (qc *QQClient) pollOnce(ctx context.Context) error {
	ep, err := qc.Main.Config.Endpoint(EndpointPoll)
	if err != nil {
		return err
	}

	payload, err := buildPayload(
		payloadField{"ptwebqq", qc.session.Ptwebqq},
		payloadField{"clientid", qc.session.ClientID},
		payloadField{"psessionid", qc.session.PSessionID},
		payloadField{"key", ""},
	)
	if err != nil {
		return err
	}

	resp, err := qc.Transport.Poll(ctx, ep, payload)
	if err != nil {
		return err
	}
	result, err := parseEnvelope(qc.Log, ep, resp)
	if err != nil {
		return err
	}
	if !result.Exists() {
		return nil
	}
	if !result.IsArray() {
		return &ProtocolError{Endpoint: ep.Name(), Reason: "poll result is not a list"}
	}

	for _, item := range result.Array() {
		qc.handlePollItem(item)
	}
	return nil
}

func (qc *QQClient) notifySessionInvalid(err error) {
	if handler, ok := qc.Handler.(SessionInvalidHandler); ok {
		handler.OnSessionInvalid(err)
	}
}
