package parsing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudx-io/creditauction/contractapi"
)

// ErrUnknownMessage indicates an envelope whose tag names no known message.
var ErrUnknownMessage = errors.New("unknown message")

// splitEnvelope decodes {"<tag>": {...}} and returns the tag and its body.
func splitEnvelope(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("parse envelope: %w", err)
	}
	if len(envelope) != 1 {
		return "", nil, fmt.Errorf("invalid envelope: expected 1 variant, got %d", len(envelope))
	}
	for tag, body := range envelope {
		return tag, body, nil
	}
	return "", nil, nil
}

func decodeStrict(body json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ParseInstantiateMsg decodes an instantiate message.
func ParseInstantiateMsg(data []byte) (contractapi.InstantiateMsg, error) {
	var msg contractapi.InstantiateMsg
	if err := decodeStrict(data, &msg); err != nil {
		return msg, fmt.Errorf("parse instantiate: %w", err)
	}
	return msg, nil
}

// ParseExecuteMsg decodes a snake_case tagged execute envelope.
func ParseExecuteMsg(data []byte) (contractapi.ExecuteMsg, error) {
	tag, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}

	var msg contractapi.ExecuteMsg
	switch tag {
	case "receive":
		var m contractapi.Receive
		err = decodeStrict(body, &m)
		msg = m
	case "view_bid":
		var m contractapi.ViewBid
		err = decodeStrict(body, &m)
		msg = m
	case "finalize":
		var m contractapi.Finalize
		err = decodeStrict(body, &m)
		msg = m
	case "return_all":
		var m contractapi.ReturnAll
		err = decodeStrict(body, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", tag, err)
	}
	return msg, nil
}

// ParseQueryMsg decodes a snake_case tagged query envelope.
func ParseQueryMsg(data []byte) (contractapi.QueryMsg, error) {
	tag, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "auction_info":
		var m contractapi.AuctionInfo
		if err := decodeStrict(body, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", tag, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
}

// EncodeExecuteMsg wraps msg in its tagged envelope.
func EncodeExecuteMsg(msg contractapi.ExecuteMsg) ([]byte, error) {
	var tag string
	switch msg.(type) {
	case contractapi.Receive:
		tag = "receive"
	case contractapi.ViewBid:
		tag = "view_bid"
	case contractapi.Finalize:
		tag = "finalize"
	case contractapi.ReturnAll:
		tag = "return_all"
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return json.Marshal(map[string]any{tag: msg})
}

// EncodeQueryMsg wraps msg in its tagged envelope.
func EncodeQueryMsg(msg contractapi.QueryMsg) ([]byte, error) {
	switch msg.(type) {
	case contractapi.AuctionInfo:
		return json.Marshal(map[string]any{"auction_info": msg})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

func answerTag(a contractapi.Answer) (string, error) {
	switch a.(type) {
	case contractapi.ConsignAnswer:
		return "consign", nil
	case contractapi.BidAnswer:
		return "bid", nil
	case contractapi.CloseAuctionAnswer:
		return "close_auction", nil
	case contractapi.AuctionInfoAnswer:
		return "auction_info", nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownMessage, a)
	}
}

// EncodeAnswer wraps a in its tagged envelope and pads the result to
// contractapi.BlockSize.
func EncodeAnswer(a contractapi.Answer) ([]byte, error) {
	tag, err := answerTag(a)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(map[string]any{tag: a})
	if err != nil {
		return nil, fmt.Errorf("encode %s answer: %w", tag, err)
	}
	return contractapi.Pad(data, contractapi.BlockSize), nil
}

// DecodeAnswer decodes a padded answer envelope.
func DecodeAnswer(data []byte) (contractapi.Answer, error) {
	tag, body, err := splitEnvelope(contractapi.Unpad(data))
	if err != nil {
		return nil, err
	}

	var answer contractapi.Answer
	switch tag {
	case "consign":
		var a contractapi.ConsignAnswer
		err = json.Unmarshal(body, &a)
		answer = a
	case "bid":
		var a contractapi.BidAnswer
		err = json.Unmarshal(body, &a)
		answer = a
	case "close_auction":
		var a contractapi.CloseAuctionAnswer
		err = json.Unmarshal(body, &a)
		answer = a
	case "auction_info":
		var a contractapi.AuctionInfoAnswer
		err = json.Unmarshal(body, &a)
		answer = a
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s answer: %w", tag, err)
	}
	return answer, nil
}
