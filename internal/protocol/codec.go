package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrMalformed reports a payload that is not a JSON object with a string "type".
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownKind reports a well-formed message whose type is not a request kind.
	ErrUnknownKind = errors.New("unknown message type")
)

// Decode parses one client message into its Request variant.
//
// Postcondition: Returns a non-nil Request, or an error wrapping ErrMalformed or ErrUnknownKind.
func Decode(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	kind := doc.Get("type")
	if kind.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch Kind(kind.Str) {
	case KindCreateLobby:
		return decodeAs[CreateLobby](raw)
	case KindJoinLobby:
		return decodeAs[JoinLobby](raw)
	case KindPageEntered:
		return decodeAs[PageEntered](raw)
	case kindLobbyEntered:
		return decodeLobbyEntered(raw, doc)
	case KindDiscoverySubscribe:
		return DiscoverySubscribe{}, nil
	case KindStartGame:
		return decodeAs[StartGame](raw)
	case KindLeaveLobby:
		return decodeAs[LeaveLobby](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind.Str)
	}
}

// decodeLobbyEntered reads the legacy form of pageEntered, which carries the
// session token as "wscode".
func decodeLobbyEntered(raw []byte, doc gjson.Result) (Request, error) {
	req, err := decodeAs[PageEntered](raw)
	if err != nil {
		return nil, err
	}
	entered := req.(PageEntered)
	if entered.SessionToken == "" {
		entered.SessionToken = doc.Get("wscode").String()
	}
	return entered, nil
}

func decodeAs[T Request](raw []byte) (Request, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, out.Kind(), err)
	}
	return out, nil
}

// Encode serialises ev as a JSON object tagged with its kind.
//
// Postcondition: The result is a JSON object whose "type" equals ev.Kind().
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encoding nil event")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ev.Kind(), err)
	}
	tagged, err := sjson.SetBytes(body, "type", string(ev.Kind()))
	if err != nil {
		return nil, fmt.Errorf("tagging %s: %w", ev.Kind(), err)
	}
	return tagged, nil
}
