package connector

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// parseEnvelope checks the {retcode, result} envelope wrapped around every API
// reply and returns result. A benign "no data" code yields an empty result
// and no error.
func parseEnvelope(log zerolog.Logger, ep *Endpoint, resp *Response) (gjson.Result, error) {
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &TransportError{Endpoint: ep.Name(), StatusCode: resp.StatusCode}
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, &ProtocolError{Endpoint: ep.Name(), Reason: "response is not valid JSON"}
	}

	envelope := gjson.ParseBytes(resp.Body)
	retcode := envelope.Get("retcode")
	if !retcode.Exists() || retcode.Type != gjson.Number {
		return gjson.Result{}, &ProtocolError{Endpoint: ep.Name(), Reason: "response has no retcode"}
	}

	switch code := int(retcode.Int()); code {
	case RetCodeOK:
		return envelope.Get("result"), nil
	case RetCodeNoData:
		log.Debug().Str("endpoint", ep.Name()).Int("retcode", code).Msg("API returned no data")
		return gjson.Result{}, nil
	case RetCodeSessionInvalid:
		log.Error().
			Str("endpoint", ep.Name()).
			Int("retcode", code).
			Msg("Session was invalidated by the server. Check that http://w.qq.com still receives messages; " +
				"if it does, log out there and log in again")
		return gjson.Result{}, &ProtocolError{Endpoint: ep.Name(), RetCode: code, Err: ErrSessionInvalid}
	default:
		return gjson.Result{}, &ProtocolError{Endpoint: ep.Name(), RetCode: code}
	}
}
